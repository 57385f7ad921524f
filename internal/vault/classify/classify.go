// Package classify validates and classifies wikilink and embed targets,
// producing the metadata map the ingestor attaches to each relation.
//
// Classification never discards a link: invalid targets yield a result
// whose metadata records the failure and recovery suggestions, so broken
// links remain discoverable.
package classify

import (
	"path"
	"strings"

	"github.com/Mootikins/crucible/internal/vault/note"
)

// Embed types, in rough platform-before-extension precedence.
const (
	EmbedImage      = "image"
	EmbedVideo      = "video"
	EmbedAudio      = "audio"
	EmbedPDF        = "pdf"
	EmbedYouTube    = "youtube"
	EmbedVimeo      = "vimeo"
	EmbedSoundCloud = "soundcloud"
	EmbedSpotify    = "spotify"
	EmbedTwitter    = "twitter"
	EmbedGitHub     = "github"
	EmbedTwitch     = "twitch"
	EmbedImgur      = "imgur"
	EmbedNote       = "note"
	EmbedExternal   = "external"
)

// platformDomains maps known hosting domains to their platform tag.
var platformDomains = map[string]string{
	"youtube.com":    EmbedYouTube,
	"youtu.be":       EmbedYouTube,
	"vimeo.com":      EmbedVimeo,
	"soundcloud.com": EmbedSoundCloud,
	"spotify.com":    EmbedSpotify,
	"twitter.com":    EmbedTwitter,
	"x.com":          EmbedTwitter,
	"github.com":     EmbedGitHub,
	"twitch.tv":      EmbedTwitch,
	"imgur.com":      EmbedImgur,
}

// extensionTypes maps lowercase file extensions to embed types.
var extensionTypes = map[string]string{
	"png": EmbedImage, "jpg": EmbedImage, "jpeg": EmbedImage,
	"gif": EmbedImage, "webp": EmbedImage, "svg": EmbedImage,
	"bmp": EmbedImage, "ico": EmbedImage, "tiff": EmbedImage,
	"avif": EmbedImage,

	"mp4": EmbedVideo, "webm": EmbedVideo, "mov": EmbedVideo,
	"avi": EmbedVideo, "mkv": EmbedVideo, "m4v": EmbedVideo,

	"mp3": EmbedAudio, "wav": EmbedAudio, "ogg": EmbedAudio,
	"flac": EmbedAudio, "m4a": EmbedAudio, "aac": EmbedAudio,
	"opus": EmbedAudio,

	"pdf": EmbedPDF,

	"md": EmbedNote, "markdown": EmbedNote,
}

// Result is the classification outcome for one link target.
type Result struct {
	Target          string
	IsExternal      bool
	EmbedType       string
	ContentCategory string
	Complexity      int
	Invalid         *ValidationError

	// Metadata is the complete relation metadata map, including the
	// enrichment keys for the resolved embed type.
	Metadata map[string]interface{}
}

// Valid reports whether the target passed validation.
func (r *Result) Valid() bool {
	return r.Invalid == nil
}

// Classify runs the full pipeline for a wikilink or embed.
func Classify(link note.WikiLink) *Result {
	r := &Result{
		Target:   link.Target,
		Metadata: map[string]interface{}{},
	}

	if verr := validateTarget(link.Target); verr != nil {
		r.Invalid = verr
		r.Metadata["validation_failed"] = true
		r.Metadata["error_type"] = verr.Type
		r.Metadata["error_category"] = verr.Category
		r.Metadata["error_severity"] = string(verr.Severity)
		r.Metadata["recovery_suggestions"] = verr.Suggestions
		annotateShape(r, link)
		return r
	}

	r.IsExternal = isExternalTarget(strings.TrimSpace(link.Target))
	r.EmbedType = embedType(link.Target, r.IsExternal)
	r.ContentCategory = contentCategory(r.EmbedType)

	if r.IsExternal {
		r.Metadata["is_external"] = true
	}
	if link.IsEmbed {
		r.Metadata["embed_type"] = r.EmbedType
		r.Metadata["content_category"] = r.ContentCategory
	}
	enrich(r, link)
	annotateShape(r, link)
	return r
}

// ClassifyInline classifies a standard markdown link. Inline links share
// the validation and external rules but are never embeds, and their link
// text is descriptive rather than an alias.
func ClassifyInline(link note.InlineLink) *Result {
	r := Classify(note.WikiLink{Target: link.URL, Offset: link.Offset})
	if link.Text != "" {
		r.Metadata["text"] = link.Text
	}
	return r
}

// annotateShape records the link-shape flags and derives the complexity
// score from them.
func annotateShape(r *Result, link note.WikiLink) {
	score := 0
	if link.IsEmbed {
		r.Metadata["is_embed"] = true
		score++
	}
	if link.Alias != "" {
		r.Metadata["has_alias"] = true
		score++
	}
	if link.HeadingRef != "" {
		r.Metadata["has_heading_ref"] = true
		r.Metadata["heading_ref"] = link.HeadingRef
		score++
	}
	if link.BlockRef != "" {
		r.Metadata["has_block_ref"] = true
		r.Metadata["block_ref"] = link.BlockRef
		score++
	}
	if r.IsExternal {
		score++
	}
	r.Complexity = score
	r.Metadata["complexity_score"] = score
}

// embedType resolves the embed type: platform domain first, then the
// extension table, then note/external fallbacks.
func embedType(target string, external bool) string {
	trimmed := strings.TrimSpace(target)

	if external {
		if platform := platformFor(trimmed); platform != "" {
			return platform
		}
		if ext := extensionOf(trimmed); ext != "" {
			if t, ok := extensionTypes[ext]; ok {
				return t
			}
		}
		return EmbedExternal
	}

	if ext := extensionOf(trimmed); ext != "" {
		if t, ok := extensionTypes[ext]; ok {
			return t
		}
		return EmbedExternal
	}
	return EmbedNote
}

// contentCategory mirrors the embed type with an explicit external
// fallback for anything unrecognized.
func contentCategory(embedType string) string {
	switch embedType {
	case EmbedImage, EmbedVideo, EmbedAudio, EmbedPDF, EmbedYouTube,
		EmbedVimeo, EmbedSoundCloud, EmbedSpotify, EmbedTwitter,
		EmbedGitHub, EmbedTwitch, EmbedImgur, EmbedNote:
		return embedType
	}
	return EmbedExternal
}

func platformFor(target string) string {
	host := hostOf(target)
	if host == "" {
		return ""
	}
	host = strings.TrimPrefix(host, "www.")
	if platform, ok := platformDomains[host]; ok {
		return platform
	}
	// Subdomains of known platforms count (music.youtube.com).
	for domain, platform := range platformDomains {
		if strings.HasSuffix(host, "."+domain) {
			return platform
		}
	}
	return ""
}

func hostOf(target string) string {
	rest := target
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	} else if i := strings.Index(rest, ":"); i >= 0 {
		// mailto:, tel: — no host component.
		return ""
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(rest, sep); i >= 0 {
			rest = rest[:i]
		}
	}
	if i := strings.Index(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(rest)
}

// extensionOf returns the lowercase extension without the dot, ignoring
// query strings and fragments.
func extensionOf(target string) string {
	clean := target
	for _, sep := range []string{"?", "#"} {
		if i := strings.Index(clean, sep); i >= 0 {
			clean = clean[:i]
		}
	}
	ext := path.Ext(clean)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
