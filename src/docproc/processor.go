// Package docproc turns raw course documents into Course and CourseChunk
// records ready for indexing.
//
// A course document starts with a three-line header:
//
//	Course Title: <title>
//	Course Link: <url>
//	Course Instructor: <name>
//
// followed by "Lesson N: <title>" sections, each optionally carrying a
// "Lesson Link: <url>" line before its content.
package docproc

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/course-agent/src/store"
)

var lessonHeader = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.+)$`)

// Processor chunks course text for the content collection.
type Processor struct {
	chunkSize    int
	chunkOverlap int
}

// NewProcessor builds a processor with character-based chunk bounds.
func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 100
	}
	return &Processor{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// SupportedFile reports whether path looks like a course document.
func SupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// ProcessFile parses one course document into its course record and content
// chunks. Chunk indexes are sequential across the whole course.
func (p *Processor) ProcessFile(path string) (*store.Course, []store.CourseChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open course document: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	course := &store.Course{}
	var (
		chunks        []store.CourseChunk
		chunkIndex    int
		currentLesson *store.Lesson
		lessonBody    strings.Builder
		sawHeader     bool
	)

	flushLesson := func() {
		body := strings.TrimSpace(lessonBody.String())
		lessonBody.Reset()
		if body == "" {
			return
		}
		var lessonNumber *int
		if currentLesson != nil {
			n := currentLesson.Number
			lessonNumber = &n
		}
		for _, piece := range p.chunkText(body) {
			chunks = append(chunks, store.CourseChunk{
				Content:      piece,
				CourseTitle:  course.Title,
				LessonNumber: lessonNumber,
				ChunkIndex:   chunkIndex,
			})
			chunkIndex++
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if !sawHeader {
			switch {
			case strings.HasPrefix(line, "Course Title:"):
				course.Title = strings.TrimSpace(strings.TrimPrefix(line, "Course Title:"))
				continue
			case strings.HasPrefix(line, "Course Link:"):
				course.Link = strings.TrimSpace(strings.TrimPrefix(line, "Course Link:"))
				continue
			case strings.HasPrefix(line, "Course Instructor:"):
				course.Instructor = strings.TrimSpace(strings.TrimPrefix(line, "Course Instructor:"))
				continue
			case strings.TrimSpace(line) == "":
				continue
			}
			sawHeader = true
		}

		if m := lessonHeader.FindStringSubmatch(line); m != nil {
			flushLesson()
			number, _ := strconv.Atoi(m[1])
			course.Lessons = append(course.Lessons, store.Lesson{
				Number: number,
				Title:  strings.TrimSpace(m[2]),
			})
			currentLesson = &course.Lessons[len(course.Lessons)-1]
			continue
		}
		if currentLesson != nil && strings.HasPrefix(line, "Lesson Link:") && currentLesson.Link == "" {
			currentLesson.Link = strings.TrimSpace(strings.TrimPrefix(line, "Lesson Link:"))
			continue
		}

		lessonBody.WriteString(line)
		lessonBody.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read course document: %w", err)
	}
	flushLesson()

	if course.Title == "" {
		course.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		for i := range chunks {
			chunks[i].CourseTitle = course.Title
		}
	}
	return course, chunks, nil
}

// chunkText groups sentences into chunks of roughly chunkSize characters
// with a sentence-aligned overlap between consecutive chunks.
func (p *Processor) chunkText(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		var (
			size int
			j    = i
		)
		for j < len(sentences) {
			next := len(sentences[j])
			if size > 0 && size+1+next > p.chunkSize {
				break
			}
			if size > 0 {
				size++
			}
			size += next
			j++
		}
		if j == i {
			// single oversized sentence; keep it whole
			j = i + 1
		}
		chunks = append(chunks, strings.Join(sentences[i:j], " "))
		if j >= len(sentences) {
			break
		}

		// walk back whole sentences until the overlap budget is spent
		back := j
		overlap := 0
		for back > i && overlap < p.chunkOverlap {
			back--
			overlap += len(sentences[back])
		}
		if back == i {
			back = j // no forward progress possible with this overlap
		}
		i = back
	}
	return chunks
}

var sentenceEnd = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// splitSentences breaks text on terminal punctuation, keeping the
// punctuation with its sentence. Text without terminals comes back whole.
func splitSentences(text string) []string {
	text = strings.TrimSpace(regexp.MustCompile(`\s+`).ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}
	var sentences []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		sentence := strings.TrimSpace(text[last:loc[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
