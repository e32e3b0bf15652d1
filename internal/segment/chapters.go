package segment

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxChapterTokens is the post-processing split threshold (§4.4).
const MaxChapterTokens = 6000

// artificialTargetTokens is the greedy-pack target for the artificial
// fallback extraction method.
const artificialTargetTokens = 3000

// ExtractionMethod records how chapter boundaries were found.
type ExtractionMethod string

const (
	MethodTOC        ExtractionMethod = "toc"
	MethodRegex      ExtractionMethod = "regex"
	MethodArtificial ExtractionMethod = "artificial"
)

// TOCEntry is a normalized table-of-contents entry, as produced by the
// TOC Detector (internal/pipeline/detect) and consumed here for
// TOC-guided chapter matching.
type TOCEntry struct {
	Title           string
	NormalizedTitle string
	Level           int
}

// ChapterCandidate is one extracted chapter before it becomes a
// model.Chapter (the Store record adds BookID/Order/CreatedAt).
type ChapterCandidate struct {
	Title   string
	Level   int
	Content string
}

// ExtractionResult is the Chapter Extractor's output (§4.4).
type ExtractionResult struct {
	Chapters             []ChapterCandidate
	HasDetectedStructure bool
	ExtractionMethod     ExtractionMethod
}

// ExtractChapters tries the three extraction methods in priority order
// - TOC-guided, regex, artificial - falling through whenever a method's
// own success criteria aren't met, then splits any oversized chapter.
func ExtractChapters(text string, tocEntries []TOCEntry) ExtractionResult {
	if candidates, ok := tocGuidedExtract(text, tocEntries); ok {
		return finalize(candidates, true, MethodTOC)
	}
	if candidates, ok := regexExtract(text); ok {
		return finalize(candidates, true, MethodRegex)
	}
	return finalize(artificialExtract(text), false, MethodArtificial)
}

func finalize(candidates []ChapterCandidate, detected bool, method ExtractionMethod) ExtractionResult {
	return ExtractionResult{
		Chapters:             splitOversizedChapters(candidates),
		HasDetectedStructure: detected,
		ExtractionMethod:     method,
	}
}

// tocGuidedExtract matches each level<=2 TOC entry forward into the
// body text via fuzzyMatchTitle, slicing chapter bodies between
// consecutive matches. Falls through (ok=false) if the match rate is
// below 50% or fewer than 3 chapters resolve.
func tocGuidedExtract(text string, entries []TOCEntry) ([]ChapterCandidate, bool) {
	var relevant []TOCEntry
	for _, e := range entries {
		if e.Level <= 2 {
			relevant = append(relevant, e)
		}
	}
	if len(relevant) == 0 {
		return nil, false
	}

	type match struct {
		entry TOCEntry
		start int
	}

	var matches []match
	searchFrom := 0
	for _, e := range relevant {
		idx, ok := fuzzyMatchTitle(text, e.NormalizedTitle, searchFrom)
		if !ok {
			continue
		}
		matches = append(matches, match{entry: e, start: idx})
		searchFrom = idx + len(e.NormalizedTitle)
	}

	matchRate := float64(len(matches)) / float64(len(relevant))
	if matchRate < 0.5 || len(matches) < 3 {
		return nil, false
	}

	var chapters []ChapterCandidate
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1].start
		}
		body := strings.TrimSpace(text[m.start:end])
		if len(body) <= 100 {
			continue
		}
		chapters = append(chapters, ChapterCandidate{
			Title:   m.entry.Title,
			Level:   m.entry.Level,
			Content: body,
		})
	}

	if len(chapters) < 3 {
		return nil, false
	}
	return chapters, true
}

var (
	chapterPrefixes = []string{"chapter", "part", "section"}
	wordRe          = regexp.MustCompile(`\w+`)
)

// fuzzyMatchTitle searches text forward from startFrom for
// normalizedTitle, trying exact match, then a "chapter N:"/"part
// N:"/"N." prefix-augmented match, then a word-overlap heuristic
// against short lines (§4.4).
func fuzzyMatchTitle(text, normalizedTitle string, startFrom int) (int, bool) {
	if startFrom < 0 || startFrom > len(text) {
		return 0, false
	}
	search := text[startFrom:]
	normalizedTitle = strings.ToLower(strings.TrimSpace(normalizedTitle))
	if normalizedTitle == "" {
		return 0, false
	}

	if idx := indexByLine(search, func(line string) bool {
		return strings.TrimSpace(strings.ToLower(line)) == normalizedTitle
	}); idx >= 0 {
		return startFrom + idx, true
	}

	for _, prefix := range chapterPrefixes {
		prefixed := regexp.MustCompile(`(?i)^(` + prefix + `\s+\d+[:.]?\s*|\d+\.\s*)` + regexp.QuoteMeta(normalizedTitle))
		if idx := indexByLine(search, func(line string) bool {
			return prefixed.MatchString(strings.TrimSpace(line))
		}); idx >= 0 {
			return startFrom + idx, true
		}
	}

	titleWords := longWords(normalizedTitle)
	if len(titleWords) > 0 {
		if idx := indexByLine(search, func(line string) bool {
			trimmed := strings.TrimSpace(line)
			if len(trimmed) >= 150 {
				return false
			}
			return wordOverlap(titleWords, longWords(strings.ToLower(trimmed))) >= 0.7
		}); idx >= 0 {
			return startFrom + idx, true
		}
	}

	return 0, false
}

// indexByLine scans text line by line, returning the byte offset of
// the first line for which match returns true.
func indexByLine(text string, match func(line string) bool) int {
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		if match(line) {
			return offset
		}
		offset += len(line) + 1
	}
	return -1
}

func longWords(s string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(s, -1) {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func wordOverlap(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	hits := 0
	for _, w := range a {
		if _, ok := set[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

// Heading regexes for the no-TOC fallback extraction method.
var (
	chapterHeadingRe   = regexp.MustCompile(`(?i)^(Chapter|Part|Section)\s+(\d+)[:.]?\s*(.*)$`)
	numberedHeadingRe  = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)
	allCapsHeadingRe   = regexp.MustCompile(`^[A-Z][A-Z0-9 '\-:]{3,}$`)
	titleCaseSubRe     = regexp.MustCompile(`^([A-Z][a-z]+(?:\s+[A-Z][a-z']+){0,6})$`)
)

// regexExtract scans line by line for three heading families: chapter
// headings and all-caps headings start new level-1/2 chapters;
// Title-Case subsection headings become inline ### headers within the
// current chapter. Requires >=3 level-1/2 headings to succeed.
func regexExtract(text string) ([]ChapterCandidate, bool) {
	lines := strings.Split(text, "\n")

	type heading struct {
		lineIdx int
		title   string
		level   int
	}
	var headings []heading

	for i, rawLine := range lines {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if m := chapterHeadingRe.FindStringSubmatch(line); m != nil {
			title := strings.TrimSpace(m[3])
			if title == "" {
				title = fmt.Sprintf("%s %s", strings.Title(strings.ToLower(m[1])), m[2])
			}
			headings = append(headings, heading{lineIdx: i, title: title, level: 1})
			continue
		}
		if m := numberedHeadingRe.FindStringSubmatch(line); m != nil {
			headings = append(headings, heading{lineIdx: i, title: strings.TrimSpace(m[2]), level: 2})
			continue
		}
		if len(line) >= 4 && len(line) < 80 && allCapsHeadingRe.MatchString(line) && hasLetters(line) {
			headings = append(headings, heading{lineIdx: i, title: toTitleCase(line), level: 2})
			continue
		}
		if len(line) < 80 && titleCaseSubRe.MatchString(line) {
			headings = append(headings, heading{lineIdx: i, title: line, level: 3})
		}
	}

	topLevelCount := 0
	for _, h := range headings {
		if h.level <= 2 {
			topLevelCount++
		}
	}
	if topLevelCount < 3 {
		return nil, false
	}

	var chapters []ChapterCandidate
	var bodyLines []string
	var inlineHeaders []string

	flush := func(title string, level int) {
		if title == "" {
			return
		}
		content := strings.TrimSpace(strings.Join(append(inlineHeaders, strings.Join(bodyLines, "\n")), "\n\n"))
		if content != "" || len(chapters) == 0 {
			chapters = append(chapters, ChapterCandidate{Title: title, Level: level, Content: content})
		}
		bodyLines = nil
		inlineHeaders = nil
	}

	currentTitle, currentLevel := "", 1
	lastIdx := 0
	for _, h := range headings {
		if h.level <= 2 {
			bodyLines = append(bodyLines, lines[lastIdx:h.lineIdx]...)
			flush(currentTitle, currentLevel)
			currentTitle, currentLevel = h.title, h.level
			lastIdx = h.lineIdx + 1
			continue
		}
		// Level-3 match becomes an inline header within the current chapter.
		bodyLines = append(bodyLines, lines[lastIdx:h.lineIdx]...)
		inlineHeaders = append(inlineHeaders, "### "+h.title)
		lastIdx = h.lineIdx + 1
	}
	bodyLines = append(bodyLines, lines[lastIdx:]...)
	flush(currentTitle, currentLevel)

	if len(chapters) < 3 {
		return nil, false
	}
	return chapters, true
}

func hasLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func toTitleCase(s string) string {
	return strings.Title(strings.ToLower(s))
}

// artificialExtract greedily packs paragraphs into ~3000-token
// "Section N" chapters when no structure was detected at all.
func artificialExtract(text string) []ChapterCandidate {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chapters []ChapterCandidate
	var current strings.Builder
	currentTokens := 0
	section := 1

	flush := func() {
		body := strings.TrimSpace(current.String())
		if body == "" {
			return
		}
		chapters = append(chapters, ChapterCandidate{
			Title:   fmt.Sprintf("Section %d", section),
			Level:   1,
			Content: body,
		})
		section++
		current.Reset()
		currentTokens = 0
	}

	for _, p := range paragraphs {
		pTokens := EstimateTokens(p)
		if currentTokens > 0 && currentTokens+pTokens > artificialTargetTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		currentTokens += pTokens
	}
	flush()

	return chapters
}

// splitOversizedChapters splits any chapter over MaxChapterTokens into
// "<title> (Part k)" sub-chapters, each within the budget.
func splitOversizedChapters(chapters []ChapterCandidate) []ChapterCandidate {
	var out []ChapterCandidate
	for _, ch := range chapters {
		if EstimateTokens(ch.Content) <= MaxChapterTokens {
			out = append(out, ch)
			continue
		}

		parts := packToTokenBudget(ch.Content, MaxChapterTokens)
		for i, part := range parts {
			out = append(out, ChapterCandidate{
				Title:   fmt.Sprintf("%s (Part %d)", ch.Title, i+1),
				Level:   ch.Level,
				Content: part,
			})
		}
	}
	return out
}

// SplitLargeChapter re-splits chapter content exceeding maxTokens into
// ordered parts each within budget, for the Chapters Pipeline's C1
// stage (§4.8) where a Chapter's compression call must stay under
// MAX_TOKENS_PER_CALL.
func SplitLargeChapter(content string, maxTokens int) []string {
	return packToTokenBudget(content, maxTokens)
}

func packToTokenBudget(text string, maxTokens int) []string {
	paragraphs := splitParagraphs(text)
	var parts []string
	var current strings.Builder

	flush := func() {
		body := strings.TrimSpace(current.String())
		if body != "" {
			parts = append(parts, body)
		}
		current.Reset()
	}

	for _, p := range paragraphs {
		// Measure the joined text, separators included, since that is what
		// the part's own token estimate will be taken over.
		if current.Len() > 0 && EstimateTokens(current.String()+"\n\n"+p) > maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	if len(parts) == 0 {
		parts = []string{text}
	}
	return parts
}
