package valueobject

// ActorType 参与者类型（封闭枚举: 消费者 / 商家 / AI 自动应答）
type ActorType string

const (
	ActorTypeUser     ActorType = "USER"
	ActorTypeBusiness ActorType = "BUSINESS"
	ActorTypeAI       ActorType = "AI"
)

// IsValid 判断参与者类型是否合法
func (t ActorType) IsValid() bool {
	switch t {
	case ActorTypeUser, ActorTypeBusiness, ActorTypeAI:
		return true
	}
	return false
}

// Actor 参与者值对象（不可变）
// 每条消息和每个连接都显式携带 Actor, 禁止以字符串/any 形式传递身份
type Actor struct {
	id        string
	actorType ActorType
}

// NewActor 创建参与者值对象
func NewActor(id string, actorType ActorType) Actor {
	return Actor{
		id:        id,
		actorType: actorType,
	}
}

// ID 返回参与者ID
func (a Actor) ID() string {
	return a.id
}

// Type 返回参与者类型
func (a Actor) Type() ActorType {
	return a.actorType
}

// IsUser 判断是否消费者
func (a Actor) IsUser() bool {
	return a.actorType == ActorTypeUser
}

// IsBusiness 判断是否商家
func (a Actor) IsBusiness() bool {
	return a.actorType == ActorTypeBusiness
}

// IsAI 判断是否 AI 自动应答
func (a Actor) IsAI() bool {
	return a.actorType == ActorTypeAI
}

// IsZero 判断是否零值
func (a Actor) IsZero() bool {
	return a.id == "" && a.actorType == ""
}

// Equals 值对象相等性比较
func (a Actor) Equals(other Actor) bool {
	return a.id == other.id && a.actorType == other.actorType
}
