package dockerfile

import "strings"

// parseFrom parses FROM [--flag=value...] image [AS alias].
func (p *parser) parseFrom() (Step, error) {
	lx := p.lx
	flags, err := p.parseFlags()
	if err != nil {
		return nil, err
	}

	image := lx.readWhile(isImageChar)
	if image == "" {
		if lx.atLineEnd() {
			return nil, lx.errorf(MalformedInstruction, "image reference", "FROM requires an image")
		}
		return nil, lx.errorf(MalformedInstruction, "image reference", "unexpected %q in image reference", lx.peekChar())
	}
	if !lx.atLineEnd() && !isBlank(lx.peekChar()) && !lx.atContinuation() {
		return nil, lx.errorf(MalformedInstruction, "image reference", "unexpected %q in image reference", lx.peekChar())
	}
	lx.skipBreakableSpace()

	var alias string
	if !lx.atLineEnd() {
		pos := lx.position
		if kw := lx.readWhile(isLetter); !strings.EqualFold(kw, "AS") {
			return nil, lx.errorAt(pos, MalformedInstruction, "AS <name> or end of line", "unexpected argument after image")
		}
		if !lx.skipBreakableSpace() || lx.atLineEnd() {
			return nil, lx.errorf(MalformedInstruction, "stage name", "AS requires a stage name")
		}
		if alias = lx.readWhile(isAliasChar); alias == "" {
			return nil, lx.errorf(MalformedInstruction, "stage name", "invalid stage name")
		}
	}

	if err := p.endLine(); err != nil {
		return nil, err
	}
	return &FromInstruction{Flags: flags, Image: image, Alias: alias, Location: p.span()}, nil
}

// parseArg parses ARG name[=default].
func (p *parser) parseArg() (Step, error) {
	lx := p.lx
	if !isLetter(lx.peekChar()) {
		return nil, lx.errorf(MalformedInstruction, "argument name", "ARG requires a name")
	}
	arg := &ArgInstruction{Name: lx.readWhile(isWordChar)}
	if lx.peekChar() == '=' {
		lx.readChar()
		if isQuote(lx.peekChar()) {
			v, err := lx.readQuoted()
			if err != nil {
				return nil, err
			}
			arg.Default = &ArgDefault{Value: v, Quoted: true}
		} else {
			arg.Default = &ArgDefault{Value: lx.readToken(nil)}
		}
	}

	if err := p.endLine(); err != nil {
		return nil, err
	}
	arg.Location = p.span()
	return arg, nil
}

// parseLabel parses LABEL key=value... or the legacy LABEL key value.
func (p *parser) parseLabel() (Step, error) {
	pairs, err := p.parsePairs(func(lx *Lexer) (string, error) {
		if isQuote(lx.peekChar()) {
			return lx.readQuoted()
		}
		return lx.readToken(func(c byte) bool { return c == '=' }), nil
	})
	if err != nil {
		return nil, err
	}
	return &LabelInstruction{Pairs: pairs, Location: p.span()}, nil
}

// parseEnv parses ENV key=value... or the legacy ENV key value.
func (p *parser) parseEnv() (Step, error) {
	pairs, err := p.parsePairs(func(lx *Lexer) (string, error) {
		return lx.readWhile(isWordChar), nil
	})
	if err != nil {
		return nil, err
	}
	return &EnvInstruction{Pairs: pairs, Location: p.span()}, nil
}

// parsePairs reads key=value pairs, falling back to the single legacy pair
// when the first key is not directly followed by '='.
func (p *parser) parsePairs(readKey func(*Lexer) (string, error)) ([]KeyValue, error) {
	lx := p.lx
	if lx.atLineEnd() {
		return nil, lx.errorf(MalformedInstruction, "key=value", "%s requires at least one key=value pair", p.keyword)
	}
	key, err := readKey(lx)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, lx.errorf(MalformedInstruction, "key", "invalid key")
	}

	if lx.peekChar() != '=' {
		value, err := p.legacyValue(key)
		if err != nil {
			return nil, err
		}
		if err := p.endLine(); err != nil {
			return nil, err
		}
		return []KeyValue{{Key: key, Value: value}}, nil
	}

	var pairs []KeyValue
	for {
		lx.readChar() // =
		var value string
		if isQuote(lx.peekChar()) {
			if value, err = lx.readQuoted(); err != nil {
				return nil, err
			}
		} else {
			value = lx.readToken(nil)
		}
		pairs = append(pairs, KeyValue{Key: key, Value: value})

		lx.skipBreakableSpace()
		if lx.atLineEnd() {
			break
		}
		pos := lx.position
		if key, err = readKey(lx); err != nil {
			return nil, err
		}
		if key == "" || lx.peekChar() != '=' {
			return nil, lx.errorAt(pos, MalformedInstruction, "key=value", "cannot mix key=value pairs with other arguments")
		}
	}

	if err := p.endLine(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// legacyValue reads the value of `KEY value`: the rest of the logical line,
// or a single quoted literal when that is all there is.
func (p *parser) legacyValue(key string) (string, error) {
	lx := p.lx
	if !lx.atLineEnd() && !isBlank(lx.peekChar()) && !lx.atContinuation() {
		return "", lx.errorf(MalformedInstruction, "'=' or whitespace", "unexpected %q after key %s", lx.peekChar(), key)
	}
	lx.skipBreakableSpace()
	if lx.atLineEnd() {
		return "", lx.errorf(MalformedInstruction, "value", "%s %s requires a value", p.keyword, key)
	}

	if isQuote(lx.peekChar()) {
		saved := *lx
		if v, err := lx.readQuoted(); err == nil {
			lx.skipBreakableSpace()
			if lx.atLineEnd() {
				return v, nil
			}
		}
		*lx = saved
	}
	return strings.TrimRight(lx.readBreakable().String(), " \t"), nil
}

// parseCopy parses the standard, JSON and heredoc forms of COPY.
func (p *parser) parseCopy() (Step, error) {
	lx := p.lx
	flags, err := p.parseFlags()
	if err != nil {
		return nil, err
	}
	if lx.atLineEnd() {
		return nil, lx.errorf(MalformedInstruction, "source and destination", "COPY requires at least one source and a destination")
	}

	if lx.hasPrefix("<<") {
		return p.parseCopyHeredoc(flags)
	}

	var paths []string
	if lx.peekChar() == '[' {
		if paths, err = lx.readStringArray(); err != nil {
			return nil, err
		}
	} else {
		for !lx.atLineEnd() {
			pos := lx.position
			path, err := p.readPath()
			if err != nil {
				return nil, err
			}
			if lx.position == pos {
				return nil, lx.errorf(MalformedInstruction, "path", "unexpected %q", lx.peekChar())
			}
			paths = append(paths, path)
			lx.skipBreakableSpace()
		}
	}
	if len(paths) < 2 {
		return nil, lx.errorf(MalformedInstruction, "source and destination", "COPY requires at least one source and a destination")
	}

	if err := p.endLine(); err != nil {
		return nil, err
	}
	return &CopyInstruction{
		Flags:       flags,
		Sources:     paths[:len(paths)-1],
		Destination: paths[len(paths)-1],
		Location:    p.span(),
	}, nil
}

func (p *parser) parseCopyHeredoc(flags []Flag) (Step, error) {
	lx := p.lx
	decl := lx.position
	var docs []Heredoc
	for lx.hasPrefix("<<") {
		h, err := lx.readHeredocDecl()
		if err != nil {
			return nil, err
		}
		docs = append(docs, h)
		lx.skipWhitespace()
	}

	if lx.atLineEnd() {
		return nil, lx.errorf(MalformedInstruction, "destination", "COPY heredoc requires a destination")
	}
	dest, err := p.readPath()
	if err != nil {
		return nil, err
	}
	if dest == "" {
		return nil, lx.errorf(MalformedInstruction, "destination", "unexpected %q", lx.peekChar())
	}
	lx.skipWhitespace()
	if !lx.atLineEnd() {
		return nil, lx.errorf(MalformedInstruction, "end of line", "COPY heredoc takes exactly one destination")
	}

	if err := lx.readHeredocBodies(docs, decl); err != nil {
		return nil, err
	}
	return &CopyInstruction{Flags: flags, Heredocs: docs, Destination: dest, Location: p.span()}, nil
}

func (p *parser) readPath() (string, error) {
	if isQuote(p.lx.peekChar()) {
		return p.lx.readQuoted()
	}
	return p.lx.readToken(nil), nil
}

// parseRun parses RUN [--flag=value...] followed by an exec, shell or
// heredoc body.
func (p *parser) parseRun() (Step, error) {
	flags, err := p.parseFlags()
	if err != nil {
		return nil, err
	}
	cmd, err := p.parseCommand(true)
	if err != nil {
		return nil, err
	}
	return &RunInstruction{Flags: flags, Command: cmd, Location: p.span()}, nil
}

func (p *parser) parseEntrypoint() (Step, error) {
	cmd, err := p.parseCommand(false)
	if err != nil {
		return nil, err
	}
	return &EntrypointInstruction{Command: cmd, Location: p.span()}, nil
}

func (p *parser) parseCmd() (Step, error) {
	cmd, err := p.parseCommand(false)
	if err != nil {
		return nil, err
	}
	return &CmdInstruction{Command: cmd, Location: p.span()}, nil
}

// parseCommand reads an exec array when the body starts with '[' and shell
// text otherwise. A malformed array is an error, never shell text.
func (p *parser) parseCommand(heredocs bool) (Command, error) {
	lx := p.lx
	if lx.atLineEnd() {
		return Command{}, lx.errorf(MalformedInstruction, "command", "%s requires a command", p.keyword)
	}

	if lx.peekChar() == '[' {
		args, err := lx.readStringArray()
		if err != nil {
			return Command{}, err
		}
		if err := p.endLine(); err != nil {
			return Command{}, err
		}
		return Command{Form: FormExec, Exec: args}, nil
	}

	if heredocs {
		if positions := lx.findHeredocs(); len(positions) > 0 {
			shell, docs, err := p.readHeredocLine(positions)
			if err != nil {
				return Command{}, err
			}
			return Command{Form: FormHeredoc, Shell: shell, Heredocs: docs}, nil
		}
	}

	shell := lx.readBreakable()
	if shell.IsEmpty() {
		return Command{}, lx.errorf(MalformedInstruction, "command", "%s requires a command", p.keyword)
	}
	if err := p.endLine(); err != nil {
		return Command{}, err
	}
	return Command{Form: FormShell, Shell: shell}, nil
}

// parseMisc keeps the arguments of any other instruction as spliced text.
func (p *parser) parseMisc() (Step, error) {
	lx := p.lx
	misc := &MiscInstruction{Instruction: p.keyword}
	if positions := lx.findHeredocs(); len(positions) > 0 {
		args, docs, err := p.readHeredocLine(positions)
		if err != nil {
			return nil, err
		}
		misc.Arguments, misc.Heredocs = args, docs
	} else {
		misc.Arguments = lx.readBreakable()
		if err := p.endLine(); err != nil {
			return nil, err
		}
	}
	misc.Location = p.span()
	return misc, nil
}
