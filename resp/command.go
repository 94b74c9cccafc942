package resp

// Command is an ordered sequence of byte-strings: the command name
// followed by its arguments, encoded on the wire as a RESP2 array of
// bulk strings. Command never nests — building higher-level argument
// structures is the job of the command-builder layer this core treats
// as an external collaborator.
type Command struct {
	Args [][]byte
}

// NewCommand builds a Command from string arguments.
func NewCommand(name string, args ...string) Command {
	out := Command{Args: make([][]byte, 0, len(args)+1)}
	out.Args = append(out.Args, []byte(name))
	for _, a := range args {
		out.Args = append(out.Args, []byte(a))
	}
	return out
}

// NewCommandBytes builds a Command from raw byte-string arguments.
func NewCommandBytes(args ...[]byte) Command {
	return Command{Args: args}
}

// Name returns the command's name (args[0]), or "" if empty.
func (c Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	return string(c.Args[0])
}
