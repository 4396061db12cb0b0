package job

import (
	"context"
	"fmt"
)

// Common implements the reporting half of [Handler]. Concrete jobs embed a
// *Common created from the factory arguments and add Run.
type Common struct {
	conn   Conn
	handle string
}

// NewCommon creates a Common bound to conn and handle.
func NewCommon(conn Conn, handle string) *Common {
	return &Common{conn: conn, handle: handle}
}

// Handle returns the job server handle of the job.
func (c *Common) Handle() string { return c.handle }

// Status reports progress as numerator out of denominator.
func (c *Common) Status(ctx context.Context, numerator, denominator uint64) error {
	return c.send(ctx, Update{Kind: UpdateStatus, Numerator: numerator, Denominator: denominator})
}

// Data streams an intermediate chunk of result data to the client.
func (c *Common) Data(ctx context.Context, b []byte) error {
	return c.send(ctx, Update{Kind: UpdateData, Data: b})
}

// Complete reports successful completion with the given result.
func (c *Common) Complete(ctx context.Context, result []byte) error {
	return c.send(ctx, Update{Kind: UpdateComplete, Data: result})
}

// Fail reports that the job failed. The error message is sent along so the
// job server can log it; clients only see the failure.
func (c *Common) Fail(ctx context.Context, err error) error {
	u := Update{Kind: UpdateFail}
	if err != nil {
		u.Data = []byte(err.Error())
	}
	return c.send(ctx, u)
}

func (c *Common) send(ctx context.Context, u Update) error {
	if err := c.conn.Update(ctx, c.handle, u); err != nil {
		return fmt.Errorf("cannot send %s update for %q: %w", u.Kind, c.handle, err)
	}
	return nil
}
