package profile

// DefaultHistoryWindow is the number of transcript messages sent with each request.
const DefaultHistoryWindow = 5

// Profile describes one flavour of the chat widget: what it greets with, how it
// instructs the model and where its transcript is kept.
type Profile struct {
	ID                 string   `json:"id" yaml:"id"`
	Title              string   `json:"title" yaml:"title"`
	StorageKey         string   `json:"storageKey" yaml:"storageKey"`
	Greeting           string   `json:"greeting" yaml:"greeting"`
	SystemPrompt       string   `json:"-" yaml:"systemPrompt"`
	Model              string   `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens          *int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	HistoryWindow      int      `json:"historyWindow" yaml:"historyWindow"`
	QuickQuestions     []string `json:"quickQuestions,omitempty" yaml:"quickQuestions,omitempty"`
	RecordLastResponse bool     `json:"recordLastResponse,omitempty" yaml:"recordLastResponse,omitempty"`
}

// Window returns the effective history window.
func (p Profile) Window() int {
	if p.HistoryWindow <= 0 {
		return DefaultHistoryWindow
	}
	return p.HistoryWindow
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }

// Seed provides the built-in profiles: the production medical assistant and its
// diagnostic twin used to verify API connectivity.
func Seed() []Profile {
	return []Profile{
		{
			ID:            "medical",
			Title:         "الدردشة الطبية",
			StorageKey:    "medical-chatbot-history",
			Greeting:      "مرحباً! أنا مساعدك الطبي. اسألني عن المستشفيات، الأدوية، الإسعافات الأولية أو أي شيء طبي.",
			SystemPrompt:  "You are a helpful medical assistant. Answer questions about hospitals, medicines, first aid, and medical information in Arabic.",
			MaxTokens:     intPtr(1024),
			Temperature:   floatPtr(0.7),
			HistoryWindow: DefaultHistoryWindow,
			QuickQuestions: []string{
				"ما هي الإسعافات الأولية للنزيف؟",
				"أين أقرب مستشفى؟",
				"ما هي أعراض الإنفلونزا؟",
				"ما هو دواء الباراسيتامول؟",
				"كيف أتعامل مع الحروق البسيطة؟",
			},
		},
		{
			ID:                 "medical-test",
			Title:              "اختبار الاتصال بـ OpenRouter API",
			StorageKey:         "medical-chatbot-test-history",
			Greeting:           "مرحباً! أنا نسخة اختبارية من المساعد الطبي. اسألني أي سؤال للتحقق من عمل API.",
			SystemPrompt:       "أنت مساعد طبي مفيد. أجب على الأسئلة حول المستشفيات والأدوية والإسعافات الأولية والمعلومات الطبية باللغة العربية.",
			HistoryWindow:      DefaultHistoryWindow,
			QuickQuestions:     []string{"اختبار سريع للتحقق من عمل API"},
			RecordLastResponse: true,
		},
	}
}
