package entity

import "strings"

// maxSlugLength keeps entity ids readable in URLs and logs.
const maxSlugLength = 64

// Slugify converts a display name into the object part of an entity_id:
// lowercase ASCII letters and digits joined by single underscores.
// It returns "" when nothing usable remains.
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "_")
	}
	return slug
}
