package typeextract

import "strings"

// parseDoc parses a `/** ... */` block comment's body into a Doc. Lines are
// de-starred (leading `*` and one following space stripped) before
// classification.
func parseDoc(comment string) Doc {
	doc := Doc{Params: map[string]string{}, Tags: map[string]string{}}
	if len(comment) < 4 {
		return doc
	}
	body := comment[2 : len(comment)-2] // strip /* and */

	var descLines []string
	var exampleLines []string
	inExample := false
	currentTag := ""
	var currentTagBuf []string

	flushTag := func() {
		if currentTag == "" {
			return
		}
		value := strings.TrimSpace(strings.Join(currentTagBuf, " "))
		switch currentTag {
		case "returns", "return":
			doc.Returns = value
		case "deprecated":
			doc.Deprecated = value
		default:
			doc.Tags[currentTag] = value
		}
		currentTag = ""
		currentTagBuf = nil
	}

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimPrefix(line, " ")

		if strings.HasPrefix(line, "@") {
			flushTag()
			inExample = false
			tag, rest := splitTag(line)
			switch tag {
			case "param":
				name, desc := splitFirstWord(rest)
				doc.Params[name] = desc
			case "example":
				inExample = true
				exampleLines = []string{}
				if rest != "" {
					exampleLines = append(exampleLines, rest)
				}
			default:
				currentTag = tag
				currentTagBuf = []string{rest}
			}
			continue
		}

		if inExample {
			if line == "" && len(exampleLines) > 0 {
				doc.Examples = append(doc.Examples, strings.Join(exampleLines, "\n"))
				inExample = false
				continue
			}
			exampleLines = append(exampleLines, raw)
			continue
		}

		if currentTag != "" {
			currentTagBuf = append(currentTagBuf, line)
			continue
		}

		descLines = append(descLines, line)
	}
	flushTag()
	if inExample && len(exampleLines) > 0 {
		doc.Examples = append(doc.Examples, strings.Join(exampleLines, "\n"))
	}

	doc.Description = strings.TrimSpace(strings.Join(trimTrailingEmpty(descLines), "\n"))
	return doc
}

func splitTag(line string) (tag, rest string) {
	line = strings.TrimPrefix(line, "@")
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx+1:])
}

func splitFirstWord(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx+1:])
}

func trimTrailingEmpty(lines []string) []string {
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	return lines
}
