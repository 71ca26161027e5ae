package feed

// SelectThumbnail returns the candidate with the largest Dimension. Ties keep
// the first one seen. Candidates without a URL or without a size never win.
func SelectThumbnail(candidates []Thumbnail) (Thumbnail, bool) {
	var best Thumbnail
	for _, c := range candidates {
		if c.URL == "" {
			continue
		}
		if c.Dimension() > best.Dimension() {
			best = c
		}
	}
	return best, best.URL != ""
}

// ThumbnailURL is SelectThumbnail reduced to the image URL, empty when there is none.
func ThumbnailURL(candidates []Thumbnail) string {
	if t, ok := SelectThumbnail(candidates); ok {
		return t.URL
	}
	return ""
}
