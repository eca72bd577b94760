package model

// 设置项的键名
const (
	SettingChildDescription = "CHILD_DESCRIPTION" // 孩子的描述
	SettingChildImage       = "CHILD_IMAGE"       // 孩子的角色参考图，data URI
	SettingAPIKey           = "ARK_API_KEY"       // 生成后端的凭证
)

// 每段保留的句子数。故事生成会多要一句，落库时按约定丢弃多余的
const (
	SegmentSentences = 3
	SeedSentences    = 4
)

// 未配置孩子信息时的兜底值，生成流程不会因缺少配置而阻塞
const (
	DefaultChildDescription = "Age: 6"
	PlaceholderChildImage   = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkqAcAAIUAgUW0RjgAAAAASUVORK5CYII="
)

// ChecklistItem 清单中的一个待办项
type ChecklistItem struct {
	Text      string `json:"text"`      // 任务文本
	Completed bool   `json:"completed"` // 是否完成
}

// Checklist 有序任务清单，顺序即展示顺序，也是故事分段的对应顺序
type Checklist []ChecklistItem

// Tasks 按清单顺序返回任务文本
func (c Checklist) Tasks() []string {
	tasks := make([]string, 0, len(c))
	for _, item := range c {
		tasks = append(tasks, item.Text)
	}
	return tasks
}

// StorySegment 故事的一段，对应清单中同下标的待办项
type StorySegment struct {
	ChecklistText string   `json:"checklistText"`   // 原始任务文本
	Sentences     []string `json:"sentences"`       // 固定3句
	Image         string   `json:"image,omitempty"` // 插画 data URI，未生成时为空
	Voice         string   `json:"voice,omitempty"` // 旁白音频，未生成时为空
}

// HasImage 该段插画是否已生成
func (s StorySegment) HasImage() bool {
	return s.Image != ""
}

// Story 与来源清单按下标对齐的故事
type Story []StorySegment

// SegmentSeed 故事生成的原始输出条目：回显的任务和 SeedSentences 句叙述
type SegmentSeed struct {
	OriginalTask string   `json:"originalTask"` // 对应的任务文本
	Sentences    []string `json:"sentences"`    // 叙述句子
}

// ChildDetails 孩子角色信息
type ChildDetails struct {
	Description string `json:"description"` // 描述
	Image       string `json:"image"`       // 参考图 data URI
}
