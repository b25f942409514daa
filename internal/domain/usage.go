package domain

// UsageStats accumulates token counters reported by the translation service.
// Advisory only.
type UsageStats struct {
	Responses    int `json:"responses"`
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	InputText    int `json:"input_text_tokens"`
	InputAudio   int `json:"input_audio_tokens"`
	OutputText   int `json:"output_text_tokens"`
	OutputAudio  int `json:"output_audio_tokens"`
}

// Usage is a single acknowledgement as sent by the service.
type Usage struct {
	TotalTokens        int `json:"total_tokens"`
	InputTokens        int `json:"input_tokens"`
	OutputTokens       int `json:"output_tokens"`
	InputTokensDetails struct {
		TextTokens  int `json:"text_tokens"`
		AudioTokens int `json:"audio_tokens"`
	} `json:"input_tokens_details"`
	OutputTokensDetails struct {
		TextTokens  int `json:"text_tokens"`
		AudioTokens int `json:"audio_tokens"`
	} `json:"output_tokens_details"`
}

func (s *UsageStats) Add(u Usage) {
	s.Responses++
	s.TotalTokens += u.TotalTokens
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	s.InputText += u.InputTokensDetails.TextTokens
	s.InputAudio += u.InputTokensDetails.AudioTokens
	s.OutputText += u.OutputTokensDetails.TextTokens
	s.OutputAudio += u.OutputTokensDetails.AudioTokens
}

// Merge folds the totals of a finished upstream connection into s.
func (s *UsageStats) Merge(o UsageStats) {
	s.Responses += o.Responses
	s.TotalTokens += o.TotalTokens
	s.InputTokens += o.InputTokens
	s.OutputTokens += o.OutputTokens
	s.InputText += o.InputText
	s.InputAudio += o.InputAudio
	s.OutputText += o.OutputText
	s.OutputAudio += o.OutputAudio
}
