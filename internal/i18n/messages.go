// Package i18n holds the user-facing strings of the image-to-prompt flow in
// English and Chinese.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Key identifies a message.
type Key string

const (
	MsgNoFile            Key = "no_file"
	MsgFileTooLarge      Key = "file_too_large"
	MsgInvalidPromptType Key = "invalid_prompt_type"
	MsgUploadFailed      Key = "upload_failed"
	MsgWorkflowFailed    Key = "workflow_failed"
	MsgRequestFailed     Key = "request_failed"
	MsgGenerationFailed  Key = "generation_failed"
	MsgSelectImageFirst  Key = "select_image_first"
	MsgSubmissionBusy    Key = "submission_busy"
	MsgPromptFallback    Key = "prompt_fallback"
	MsgUploadHint        Key = "upload_hint"
	MsgTooManyRequests   Key = "too_many_requests"
)

const (
	English = "en"
	Chinese = "zh"
)

var supported = []language.Tag{language.English, language.SimplifiedChinese, language.TraditionalChinese}

var matcher = language.NewMatcher(supported)

var catalogs = map[string]map[Key]string{
	English: {
		MsgNoFile:            "Please choose an image to upload.",
		MsgFileTooLarge:      "The image is too large.",
		MsgInvalidPromptType: "Unknown prompt type.",
		MsgUploadFailed:      "The image could not be uploaded. Please try again.",
		MsgWorkflowFailed:    "The prompt could not be generated. Please try again.",
		MsgRequestFailed:     "Something went wrong. Please try again.",
		MsgGenerationFailed:  "Generation failed, please try again.",
		MsgSelectImageFirst:  "Please select an image first.",
		MsgSubmissionBusy:    "A generation is already running.",
		MsgPromptFallback:    "Prompt field not found, showing the raw workflow output.",
		MsgUploadHint:        "PNG, JPG, WEBP up to 5MB",
		MsgTooManyRequests:   "Too many requests, please slow down.",
	},
	Chinese: {
		MsgNoFile:            "请选择要上传的图片。",
		MsgFileTooLarge:      "图片太大。",
		MsgInvalidPromptType: "未知的提示词类型。",
		MsgUploadFailed:      "图片上传失败，请重试。",
		MsgWorkflowFailed:    "提示词生成失败，请重试。",
		MsgRequestFailed:     "出现错误，请重试。",
		MsgGenerationFailed:  "生成失败，请重试。",
		MsgSelectImageFirst:  "请先选择一张图片。",
		MsgSubmissionBusy:    "已有生成任务正在进行。",
		MsgPromptFallback:    "未找到提示词字段，显示原始工作流输出。",
		MsgUploadHint:        "PNG、JPG、WEBP，最大 5MB",
		MsgTooManyRequests:   "请求过于频繁，请稍后再试。",
	},
}

// Supported reports whether locale has a catalog.
func Supported(locale string) bool {
	_, ok := catalogs[locale]
	return ok
}

// Normalize maps any BCP 47 tag (or Accept-Language header) onto a supported
// locale. The second result is false when nothing matched confidently.
func Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return English, false
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return English, false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English, false
	}
	if idx > 0 {
		return Chinese, true
	}
	return English, true
}

// T returns the message for key in locale, falling back to English and then
// to the key itself.
func T(locale string, key Key) string {
	if msgs, ok := catalogs[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := catalogs[English][key]; ok {
		return msg
	}
	return string(key)
}
