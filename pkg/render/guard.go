package render

import (
	"fmt"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/errclass"
)

// Outcome is the result of a guarded call.
type Outcome struct {
	OK             bool
	Classification errclass.Classification
	Err            error
	// Panicked is set when fn panicked rather than returned an error
	Panicked bool
}

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Guard runs fn and turns its error or panic into a classified Outcome.
func Guard(fn func() error) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Classification: errclass.ClassifyValue(r),
				Err:            &PanicError{Value: r},
				Panicked:       true,
			}
		}
	}()

	if err := fn(); err != nil {
		return Outcome{Classification: errclass.Classify(err), Err: err}
	}
	return Outcome{OK: true}
}
