package probe

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

// SendPartial dials addr and writes head, which should be an incomplete
// request. The connection is left open so the server keeps waiting on it;
// the caller owns it from here.
func SendPartial(ctx context.Context, addr, head string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}

	if _, err := io.WriteString(conn, head); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "write partial request")
	}
	return conn, nil
}
