package classify

import (
	"strings"

	"github.com/Mootikins/crucible/internal/vault/note"
)

var (
	vectorFormats       = map[string]bool{"svg": true}
	transparencyFormats = map[string]bool{"png": true, "gif": true, "webp": true, "svg": true, "avif": true}
	lossyFormats        = map[string]bool{"jpg": true, "jpeg": true, "webp": true, "avif": true}
)

// specialNoteFiles are conventional file stems that get flagged so the
// UI can render them distinctly.
var specialNoteFiles = map[string]string{
	"readme":    "readme",
	"changelog": "changelog",
	"todo":      "todo",
}

// enrich adds embed-type-specific metadata to the result.
func enrich(r *Result, link note.WikiLink) {
	ext := extensionOf(strings.TrimSpace(link.Target))

	switch r.EmbedType {
	case EmbedImage:
		r.Metadata["image_format"] = ext
		r.Metadata["is_vector"] = vectorFormats[ext]
		r.Metadata["supports_transparency"] = transparencyFormats[ext]
		r.Metadata["is_lossy"] = lossyFormats[ext]

	case EmbedVideo, EmbedAudio:
		// Direct media files support player controls; platform embeds
		// bring their own player.
		r.Metadata["is_direct_file"] = true
		r.Metadata["supports_controls"] = true
		if ext != "" {
			r.Metadata["media_format"] = ext
		}

	case EmbedYouTube, EmbedVimeo, EmbedSoundCloud, EmbedSpotify,
		EmbedTwitter, EmbedGitHub, EmbedTwitch, EmbedImgur:
		r.Metadata["is_direct_file"] = false
		r.Metadata["platform"] = r.EmbedType

	case EmbedPDF:
		r.Metadata["supports_pagination"] = true
		r.Metadata["may_be_encrypted"] = true

	case EmbedNote:
		format := "markdown"
		if ext != "" && ext != "md" && ext != "markdown" {
			format = ext
		}
		r.Metadata["note_format"] = format
		if special := specialNoteFile(link.Target); special != "" {
			r.Metadata["special_file"] = special
		}
	}
}

// specialNoteFile detects README/CHANGELOG/TODO style targets by their
// final path segment, case-insensitive, extension ignored.
func specialNoteFile(target string) string {
	base := target
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return specialNoteFiles[strings.ToLower(base)]
}
