package murmur

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mosaicnetworks/murmur/src/failure"
	"github.com/mosaicnetworks/murmur/src/message"
)

const consoleHelp = `commands:
  connect <id>                   add a neighbor found in the directory
  disconnect <id>                remove a neighbor
  broadcast <text>               broadcast a message to all neighbors
  fail <reason>                  put the node into failure
  recover                        start recovering from a failure
  activate                       activate the node
  shutdown                       deactivate the node
  failure <omission|delay> <on|off>
  state                          print the state of the node
  stats                          print the node statistics
  peers                          list the neighbors
  metrics                        print the event counters
  exit                           quit`

// Console executes operator commands against an engine, one per line.
type Console struct {
	engine *Murmur
	out    io.Writer
}

// NewConsole ...
func NewConsole(engine *Murmur, out io.Writer) *Console {
	return &Console{
		engine: engine,
		out:    out,
	}
}

// Run reads commands from in until exit or EOF.
func (c *Console) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if c.Execute(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// PrintDeliveries writes every message delivered by the node until the
// delivery channel is closed.
func (c *Console) PrintDeliveries() {
	for m := range c.engine.Node.DeliverCh() {
		fmt.Fprintln(c.out, formatDelivery(m))
	}
}

func formatDelivery(m message.Message) string {
	return fmt.Sprintf("[%s #%d] %s", m.SenderID(), m.SequenceNumber(), m.Content())
}

// Execute runs one command line. It returns true if the console should exit.
func (c *Console) Execute(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, arg := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
	}

	n := c.engine.Node

	var err error
	switch strings.ToLower(cmd) {
	case "connect":
		if arg == "" {
			err = fmt.Errorf("usage: connect <id>")
			break
		}
		if err = n.Connect(arg); err == nil {
			c.printf("connected to %s", arg)
		}
	case "disconnect":
		if n.RemoveNeighbor(arg) {
			c.printf("disconnected from %s", arg)
		} else {
			err = fmt.Errorf("%s is not a neighbor", arg)
		}
	case "broadcast":
		var m message.Message
		if m, err = n.Broadcast(arg); err == nil {
			c.printf("sent #%d", m.SequenceNumber())
		}
	case "fail":
		if arg == "" {
			arg = "manual"
		}
		err = n.EnterFailure(arg)
	case "recover":
		err = n.Recover()
	case "activate":
		err = n.Activate()
	case "shutdown":
		err = n.Shutdown()
	case "failure":
		err = c.setFailure(arg)
	case "state":
		c.printf("%s", n.GetState())
	case "stats":
		stats := n.GetStats()
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.printf("%s: %s", k, stats[k])
		}
	case "peers":
		for _, p := range n.GetPeers() {
			c.printf("%s %s", p.ID, p.NetAddr)
		}
	case "metrics":
		fmt.Fprint(c.out, c.engine.Metrics.Report())
	case "help":
		c.printf("%s", consoleHelp)
	case "exit", "quit":
		return true
	default:
		err = fmt.Errorf("unknown command %q, type help", cmd)
	}

	if err != nil {
		c.printf("error: %v", err)
	}

	return false
}

func (c *Console) setFailure(arg string) error {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return fmt.Errorf("usage: failure <omission|delay> <on|off>")
	}

	mode, err := failure.ParseMode(fields[0])
	if err != nil {
		return err
	}

	var on bool
	switch fields[1] {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("usage: failure <omission|delay> <on|off>")
	}

	if err := c.engine.Node.SetFailureMode(mode, on); err != nil {
		return err
	}

	c.printf("failure strategy: %s", c.engine.Node.GetFailureStrategy())
	return nil
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format+"\n", args...)
}
