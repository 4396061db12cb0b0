// Greet is a job plugin used by the PluginResolver tests. The same plugin is
// opened under the names Greet, Shout and Broken.
package main

import (
	"bytes"
	"context"

	"github.com/juliaogris/gearjob/pkg/job"
)

type greet struct {
	*job.Common
	loud bool
}

func (g *greet) Run(_ context.Context, arg []byte) ([]byte, error) {
	result := append([]byte("hello "), arg...)
	if g.loud {
		result = bytes.ToUpper(result)
	}
	return result, nil
}

// NewGreet is a plain constructor function.
func NewGreet(conn job.Conn, handle string) any {
	return &greet{Common: job.NewCommon(conn, handle)}
}

// NewShout is a Factory variable.
var NewShout job.Factory = func(conn job.Conn, handle string) any {
	return &greet{Common: job.NewCommon(conn, handle), loud: true}
}

// NewBroken has the wrong signature for a job constructor.
func NewBroken() int { return 0 }

func main() {}
