// Package extraction turns raw analysis output into a single labeled text
// artifact. Each modality has its own composition rules; the first line of
// every artifact names the modality so downstream consumers can branch
// without re-detecting it.
package extraction

import (
	"fmt"
	"strings"
)

// Modality tags recognized in analysis metadata.
const (
	ModalityVideo    = "VIDEO"
	ModalityDocument = "DOCUMENT"
	ModalityImage    = "IMAGE"
	ModalityAudio    = "AUDIO"
)

// Content kinds reported alongside composed artifacts.
const (
	KindVideo    = "video_content"
	KindDocument = "document_content"
	KindImage    = "image_content"
	KindAudio    = "audio_transcript"
)

// ResultDocument is the analysis result shape. Only the fields the composer
// reads are modeled; unknown fields are ignored on decode.
type ResultDocument struct {
	Video    *VideoContent    `json:"video,omitempty"`
	Chapters []Chapter        `json:"chapters,omitempty"`
	Document *DocumentContent `json:"document,omitempty"`
	Pages    []Page           `json:"pages,omitempty"`
	Entities []Entity         `json:"entities,omitempty"`
	Image    *ImageContent    `json:"image,omitempty"`
	Audio    *AudioContent    `json:"audio,omitempty"`
}

type Representation struct {
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

type Transcript struct {
	Representation Representation `json:"representation"`
}

type VideoContent struct {
	Transcript Transcript `json:"transcript"`
	Summary    string     `json:"summary,omitempty"`
}

type Chapter struct {
	Summary string  `json:"summary,omitempty"`
	Frames  []Frame `json:"frames,omitempty"`
}

type Frame struct {
	TextWords []TextWord `json:"text_words,omitempty"`
}

type TextWord struct {
	Text string `json:"text,omitempty"`
}

type DocumentContent struct {
	Description string `json:"description,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

type Page struct {
	PageIndex          int            `json:"page_index"`
	DetectedPageNumber *int           `json:"detected_page_number,omitempty"`
	Representation     Representation `json:"representation"`
}

type Entity struct {
	Type    string `json:"type,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type ImageContent struct {
	Summary   string     `json:"summary,omitempty"`
	TextWords []TextWord `json:"text_words,omitempty"`
}

type AudioContent struct {
	Transcript Transcript `json:"transcript"`
}

// Compose builds the labeled artifact for the given modality. When the
// modality is unrecognized, or its sections all come up empty, the audio
// transcript serves as the fallback. An empty result reports ok=false.
func Compose(modality string, doc *ResultDocument) (content, kind string, ok bool) {
	if doc == nil {
		return "", "", false
	}
	switch strings.ToUpper(strings.TrimSpace(modality)) {
	case ModalityVideo:
		content = ComposeVideo(doc)
		kind = KindVideo
	case ModalityDocument:
		content = ComposeDocument(doc)
		kind = KindDocument
	case ModalityImage:
		content = ComposeImage(doc)
		kind = KindImage
	case ModalityAudio:
		content = ComposeAudio(doc)
		kind = KindAudio
	}
	if content == "" {
		if fallback := ComposeAudio(doc); fallback != "" {
			return fallback, KindAudio, true
		}
		return "", "", false
	}
	return content, kind, true
}

// ComposeVideo assembles transcript, summary, chapter summaries, and frame
// text into one artifact. Empty sections are omitted entirely.
func ComposeVideo(doc *ResultDocument) string {
	var transcript, summary string
	if doc.Video != nil {
		transcript = doc.Video.Transcript.Representation.Text
		summary = doc.Video.Summary
	}

	var chapterSummaries []string
	for i, chapter := range doc.Chapters {
		if chapter.Summary != "" {
			chapterSummaries = append(chapterSummaries, fmt.Sprintf("Chapter %d:\n%s", i+1, chapter.Summary))
		}
	}

	var textParts []string
	for _, chapter := range doc.Chapters {
		for _, frame := range chapter.Frames {
			for _, word := range frame.TextWords {
				if word.Text != "" {
					textParts = append(textParts, word.Text)
				}
			}
		}
	}
	videoText := strings.Join(textParts, " ")

	if transcript == "" && summary == "" && len(chapterSummaries) == 0 && videoText == "" {
		return ""
	}

	parts := []string{"MODALITY: video"}
	if transcript != "" {
		parts = append(parts, "Audio Transcript:\n"+transcript)
	}
	if summary != "" {
		parts = append(parts, "Video Summary:\n"+summary)
	}
	if len(chapterSummaries) > 0 {
		parts = append(parts, "Chapter Summaries:\n"+strings.Join(chapterSummaries, "\n\n"))
	}
	if videoText != "" {
		parts = append(parts, "Text Detected in Video:\n"+videoText)
	}
	return strings.Join(parts, "\n\n")
}

// ComposeDocument assembles the brief description, long summary, figure
// descriptions, and per-page markdown under a banner.
func ComposeDocument(doc *ResultDocument) string {
	var description, summary string
	if doc.Document != nil {
		description = doc.Document.Description
		summary = doc.Document.Summary
	}

	var pageContents []string
	for _, page := range doc.Pages {
		markdown := page.Representation.Markdown
		if markdown == "" {
			continue
		}
		pageNumber := page.PageIndex + 1
		if page.DetectedPageNumber != nil {
			pageNumber = *page.DetectedPageNumber
		}
		pageContents = append(pageContents, fmt.Sprintf("=== Page %d ===\n\n%s", pageNumber, markdown))
	}

	var figureDescriptions []string
	for _, entity := range doc.Entities {
		if entity.Type == "FIGURE" && entity.Summary != "" {
			figureDescriptions = append(figureDescriptions, "- "+entity.Summary)
		}
	}

	if description == "" && summary == "" && len(pageContents) == 0 && len(figureDescriptions) == 0 {
		return ""
	}

	parts := []string{"MODALITY: document"}
	if description != "" {
		parts = append(parts, "Document Description (Brief):\n"+description)
	}
	if summary != "" {
		parts = append(parts, "Document Summary:\n"+summary)
	}
	if len(figureDescriptions) > 0 {
		parts = append(parts, "Figure Descriptions:\n"+strings.Join(figureDescriptions, "\n\n"))
	}
	if len(pageContents) > 0 {
		banner := strings.Repeat("=", 50)
		parts = append(parts, banner+"\nDOCUMENT CONTENT BY PAGE\n"+banner+"\n\n"+strings.Join(pageContents, "\n\n"))
	}
	return strings.Join(parts, "\n\n")
}

// ComposeImage assembles the image summary and joined OCR words.
func ComposeImage(doc *ResultDocument) string {
	if doc.Image == nil {
		return ""
	}
	summary := doc.Image.Summary
	var words []string
	for _, word := range doc.Image.TextWords {
		if word.Text != "" {
			words = append(words, word.Text)
		}
	}
	ocrText := strings.Join(words, " ")

	if summary == "" && ocrText == "" {
		return ""
	}

	parts := []string{"MODALITY: image"}
	if summary != "" {
		parts = append(parts, "Image Summary:\n"+summary)
	}
	if ocrText != "" {
		parts = append(parts, "Extracted Text (OCR):\n"+ocrText)
	}
	return strings.Join(parts, "\n\n")
}

// ComposeAudio returns the labeled transcript, or empty when the transcript
// is missing or whitespace.
func ComposeAudio(doc *ResultDocument) string {
	if doc.Audio == nil {
		return ""
	}
	transcript := doc.Audio.Transcript.Representation.Text
	if strings.TrimSpace(transcript) == "" {
		return ""
	}
	return "MODALITY: audio\n\nAudio Transcript:\n" + transcript
}
