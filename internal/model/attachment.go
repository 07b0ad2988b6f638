// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// AttachmentSource tells where an attachment came from.
type AttachmentSource string

const (
	SourceUpload AttachmentSource = "upload"
	SourceAsset  AttachmentSource = "asset"
)

// PendingAttachment is a file or asset reference queued for the next send.
type PendingAttachment struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Data    string           `json:"data,omitempty"`    // base64 payload (uploads)
	Path    string           `json:"path,omitempty"`    // asset reference
	Preview string           `json:"preview,omitempty"` // data URL, images only
	MIME    string           `json:"mime,omitempty"`
	Size    int64            `json:"size,omitempty"`
	Source  AttachmentSource `json:"source"`
}

// Normalize returns the transmittable subset, dropping the preview.
func (p PendingAttachment) Normalize() Attachment {
	return Attachment{
		Name:   p.Name,
		Data:   p.Data,
		Path:   p.Path,
		MIME:   p.MIME,
		Source: p.Source,
	}
}

// Attachment is the normalized form sent to the backend and snapshotted on
// user turns.
type Attachment struct {
	Name   string           `json:"name"`
	Data   string           `json:"data,omitempty"`
	Path   string           `json:"path,omitempty"`
	MIME   string           `json:"mime,omitempty"`
	Source AttachmentSource `json:"source"`
}

// NormalizeAll converts a pending list into its transmittable form.
func NormalizeAll(pending []PendingAttachment) []Attachment {
	if len(pending) == 0 {
		return nil
	}
	out := make([]Attachment, len(pending))
	for i, p := range pending {
		out[i] = p.Normalize()
	}
	return out
}

func cloneAttachments(in []Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	return append([]Attachment(nil), in...)
}
