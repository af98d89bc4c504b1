package speech

import (
	"io"
)

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // wav, mp3, webm, etc.
	Language  string    `json:"language"` // ISO-639-1, e.g. en
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`  // 声音别名或供应商声音 ID
	Speed     float32 `json:"speed"`  // 语速倍率 0.25-4.0，0 表示使用声音默认值
	Format    string  `json:"format"` // wav, mp3, etc.
}
