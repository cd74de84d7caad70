package materialize

import (
	"net/url"
	"path"
	"strings"

	"travelog-backend/internal/shared/util"
)

// DirPrefix is the object-store prefix under which city images live.
const DirPrefix = "CityImages/"

const defaultExt = "jpg"

var allowedExt = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"heic": {},
	"gif":  {},
}

// Filename builds the deterministic filename for an image of key fetched from rawURL.
// withHash appends a short hash of the URL so cities sharing a key but not an
// image get distinct files.
func Filename(key, rawURL string, withHash bool) string {
	name := util.SanitizeKey(key)
	if withHash {
		name += "_" + util.ShortHash(strings.TrimSpace(rawURL))
	}
	return name + "." + Extension(rawURL)
}

// Extension returns the whitelisted, lower-cased extension of the URL path, or "jpg".
func Extension(rawURL string) string {
	p := strings.TrimSpace(rawURL)
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if _, ok := allowedExt[ext]; ok {
		return ext
	}
	return defaultExt
}

// ObjectKey returns the store key for a filename.
func ObjectKey(filename string) string {
	return DirPrefix + filename
}

// cacheKeys lists the keys under which the image bytes may have been cached:
// the raw string, its trimmed form and a re-encoded form, without duplicates.
func cacheKeys(rawURL string) []string {
	keys := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(k string) {
		if strings.TrimSpace(k) == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	add(rawURL)
	trimmed := strings.TrimSpace(rawURL)
	add(trimmed)
	add(normalizeURL(trimmed))
	return keys
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String()
}
