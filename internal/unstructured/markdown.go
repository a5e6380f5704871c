package unstructured

import (
	"strings"
	"unicode/utf8"
)

// maxHeadingLen bounds the first title promoted to a level-one heading.
const maxHeadingLen = 150

// ToMarkdown renders elements as Markdown. The first short title becomes
// "#", later titles "##", list items "- ", tables fenced blocks, and
// everything else a plain paragraph.
func ToMarkdown(elements []Element) string {
	var chunks []string
	last := func() string {
		if len(chunks) == 0 {
			return ""
		}
		return chunks[len(chunks)-1]
	}
	lastWasTitle := false
	titles := 0

	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}

		switch el.Type {
		case "Title":
			titles++
			if titles == 1 && utf8.RuneCountInString(text) < maxHeadingLen {
				chunks = append(chunks, "# "+text+"\n\n")
			} else {
				if !lastWasTitle && len(chunks) > 0 && !strings.HasSuffix(last(), "\n\n") {
					chunks = append(chunks, "\n")
				}
				chunks = append(chunks, "## "+text+"\n\n")
			}
			lastWasTitle = true

		case "ListItem":
			if !lastWasTitle && len(chunks) > 0 && !strings.HasPrefix(strings.TrimSpace(last()), "-") {
				chunks = append(chunks, "\n")
			}
			chunks = append(chunks, "- "+text+"\n")
			lastWasTitle = false

		case "Table":
			if len(chunks) > 0 && !strings.HasSuffix(last(), "\n\n") {
				chunks = append(chunks, "\n\n")
			}
			chunks = append(chunks, "```\n"+text+"\n```\n\n")
			lastWasTitle = false

		default:
			prev := last()
			if !lastWasTitle && strings.TrimSpace(prev) != "" &&
				!strings.HasPrefix(prev, "-") && !strings.HasPrefix(prev, "#") && !strings.HasPrefix(prev, "`") {
				chunks = append(chunks, "\n")
			}
			chunks = append(chunks, text+"\n")
			lastWasTitle = false
		}
	}
	return strings.Join(chunks, "")
}
