package job

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Decode reads records of the form
//
//	<id> <due unix seconds, 0 = unset> <executed> <command>
//
// one per line. Blank lines are skipped. The first malformed record ends the
// stream: records before it are returned without error. Only read errors are
// reported.
func Decode(r io.Reader) ([]Job, error) {
	var out []Job
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		j, ok := decodeLine(line)
		if !ok {
			return out, nil
		}
		out = append(out, j)
	}
	if err := sc.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return out, nil
		}
		return out, err
	}
	return out, nil
}

func decodeLine(line string) (Job, bool) {
	var head [3]string
	rest := line
	for i := range head {
		rest = strings.TrimLeft(rest, " \t")
		end := strings.IndexAny(rest, " \t")
		if end <= 0 {
			return Job{}, false
		}
		head[i], rest = rest[:end], rest[end:]
	}
	cmd := strings.TrimLeft(rest, " \t")
	if cmd == "" {
		return Job{}, false
	}

	id, err := strconv.Atoi(head[0])
	if err != nil {
		return Job{}, false
	}
	due, err := strconv.ParseInt(head[1], 10, 64)
	if err != nil {
		return Job{}, false
	}
	executed, err := strconv.Atoi(head[2])
	if err != nil {
		return Job{}, false
	}
	return Job{ID: id, Command: cmd, Due: FromUnix(due), Executed: executed != 0}, true
}

// Encode writes jobs in order using the Decode format.
func Encode(w io.Writer, jobs []Job) error {
	bw := bufio.NewWriter(w)
	for _, j := range jobs {
		executed := "0"
		if j.Executed {
			executed = "1"
		}
		line := strconv.Itoa(j.ID) + " " + strconv.FormatInt(ToUnix(j.Due), 10) + " " + executed + " " + j.Command + "\n"
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ToUnix maps the zero time to 0 and everything else to Unix seconds.
func ToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// FromUnix is the inverse of ToUnix.
func FromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
