package youtube

import (
	"fmt"
	"net/url"
	"strings"
)

// ExtractVideoID returns the video ID in a YouTube link. Accepted forms are
// youtu.be/ID, youtube.com/watch?v=ID, youtube.com/shorts/ID and youtube.com/embed/ID
// on youtube.com, youtu.be or any of their subdomains.
func ExtractVideoID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty link", ErrInvalidURL)
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "youtu.be" || strings.HasSuffix(host, ".youtu.be"):
		if id, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/"); id != "" {
			return id, nil
		}
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			return v, nil
		}
		parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
		if len(parts) >= 2 && (parts[0] == "shorts" || parts[0] == "embed") && parts[1] != "" {
			return parts[1], nil
		}
	default:
		return "", fmt.Errorf("%w: %q is not a YouTube host", ErrInvalidURL, host)
	}
	return "", fmt.Errorf("%w: no video id in %q", ErrInvalidURL, link)
}

// CleanComments trims every comment and drops the empty ones.
func CleanComments(comments []string) []string {
	cleaned := make([]string, 0, len(comments))
	for _, c := range comments {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}
