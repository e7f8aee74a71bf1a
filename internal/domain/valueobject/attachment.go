package valueobject

// Attachment 消息附件描述（不可变）
// 只保存外部存储的引用, 文件本体由外部对象存储托管
type Attachment struct {
	url      string
	mimeType string
	size     int64
}

// NewAttachment 创建附件描述
func NewAttachment(url, mimeType string, size int64) Attachment {
	return Attachment{
		url:      url,
		mimeType: mimeType,
		size:     size,
	}
}

// URL 返回附件地址
func (a Attachment) URL() string {
	return a.url
}

// MimeType 返回附件类型
func (a Attachment) MimeType() string {
	return a.mimeType
}

// Size 返回附件字节数
func (a Attachment) Size() int64 {
	return a.size
}

// IsZero 判断是否空附件
func (a Attachment) IsZero() bool {
	return a.url == ""
}

// Equals 值对象相等性比较
func (a Attachment) Equals(other Attachment) bool {
	return a == other
}
