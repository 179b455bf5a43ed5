package probe

import (
	"bytes"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var reSSLine = regexp.MustCompile(`LISTEN +\d+ +\d+ +([^ ]+) +[^ ]+( +(.*))?`)
var reSSPName = regexp.MustCompile(`\(\("([^"]+)"`)
var reSSPID = regexp.MustCompile(`pid=(\d+)`)

// ListenInfo describes one listening TCP socket.
type ListenInfo struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	PID  string `yaml:"pid,omitempty"`
	Name string `yaml:"name,omitempty"`
}

// ListeningPorts asks ss which sockets are listening on port. Process
// details are only filled in when ss is allowed to see them.
func ListeningPorts(port string) ([]ListenInfo, error) {
	cmd := exec.Command("ss", "-tnlHOp", fmt.Sprintf("( sport = :%s )", port))
	var buf bytes.Buffer
	cmd.Stdout = &buf
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, "run ss")
	}
	return ParseSS(buf.String())
}

// ParseSS parses the output of `ss -tnlHOp`.
func ParseSS(out string) ([]ListenInfo, error) {
	var res []ListenInfo

	lines := strings.Split(out, "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		var info ListenInfo

		m := reSSLine.FindStringSubmatch(line)
		if m == nil {
			return nil, errors.Errorf("ss line didn't match the regex: %s", line)
		}
		info.Host, info.Port, _ = net.SplitHostPort(m[1])
		if pinfo := m[3]; pinfo != "" {
			if pid := reSSPID.FindStringSubmatch(pinfo); pid != nil {
				info.PID = pid[1]
			}
			if name := reSSPName.FindStringSubmatch(pinfo); name != nil {
				info.Name = name[1]
			}
		}

		res = append(res, info)
	}

	return res, nil
}
