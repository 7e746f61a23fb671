// Package logging is the structured logger every reconciler component takes in
// its constructor. Production code logs through logrus; tests use MockLogger
// and assert on recorded entries.
package logging

// Logger is a leveled, structured logger. Messages are constant strings and
// the variable parts travel as fields (message id, run id, dedup key).
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	WithError(err error) Logger
	WithField(key string, value interface{}) Logger
	WithFields(fields ...Field) Logger
}

// Field is one structured key/value pair
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
