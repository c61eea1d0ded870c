package store

// Lesson is a single lesson within a course.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Course is the ingested representation of one course document.
// The title doubles as the unique identifier across both collections.
type Course struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []Lesson
}

// CourseChunk is the unit of content indexed for similarity search.
// LessonNumber is nil for material that precedes the first lesson marker.
type CourseChunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
}

// CourseRecord is a catalog entry read back from the store, with the
// lesson array already deserialized.
type CourseRecord struct {
	Title       string   `json:"title"`
	Link        string   `json:"course_link,omitempty"`
	Instructor  string   `json:"instructor,omitempty"`
	LessonCount int      `json:"lesson_count"`
	Lessons     []Lesson `json:"lessons"`
}
