/*
Copyright 2018-2024 Craig Johnston <cjimti@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package conedit

import (
	"bufio"
	"unicode"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyUp
	keyDown
	keyHome
	keyEnd
	keyTab
	keyInterrupt
	keyEOF
	keyKillEnd
	keyKillStart
	keyKillWord
	keyClearScreen
	keyUnknown
)

type key struct {
	kind keyKind
	r    rune
}

const (
	ctrlA     = 0x01
	ctrlB     = 0x02
	ctrlC     = 0x03
	ctrlD     = 0x04
	ctrlE     = 0x05
	ctrlF     = 0x06
	ctrlH     = 0x08
	tab       = 0x09
	lf        = 0x0a
	ctrlK     = 0x0b
	ctrlL     = 0x0c
	cr        = 0x0d
	ctrlN     = 0x0e
	ctrlP     = 0x10
	ctrlU     = 0x15
	ctrlW     = 0x17
	esc       = 0x1b
	backspace = 0x7f
)

// readKey decodes one keystroke. Telnet clients end lines with CR LF or
// CR NUL; the trailing byte is swallowed when it is already buffered.
func readKey(in *bufio.Reader) (key, error) {
	r, _, err := in.ReadRune()
	if err != nil {
		return key{}, err
	}

	switch r {
	case cr:
		if in.Buffered() > 0 {
			if next, err := in.Peek(1); err == nil && (next[0] == lf || next[0] == 0) {
				_, _ = in.ReadByte()
			}
		}
		return key{kind: keyEnter}, nil
	case lf:
		return key{kind: keyEnter}, nil
	case backspace, ctrlH:
		return key{kind: keyBackspace}, nil
	case tab:
		return key{kind: keyTab}, nil
	case ctrlA:
		return key{kind: keyHome}, nil
	case ctrlE:
		return key{kind: keyEnd}, nil
	case ctrlB:
		return key{kind: keyLeft}, nil
	case ctrlF:
		return key{kind: keyRight}, nil
	case ctrlP:
		return key{kind: keyUp}, nil
	case ctrlN:
		return key{kind: keyDown}, nil
	case ctrlC:
		return key{kind: keyInterrupt}, nil
	case ctrlD:
		return key{kind: keyEOF}, nil
	case ctrlK:
		return key{kind: keyKillEnd}, nil
	case ctrlU:
		return key{kind: keyKillStart}, nil
	case ctrlW:
		return key{kind: keyKillWord}, nil
	case ctrlL:
		return key{kind: keyClearScreen}, nil
	case esc:
		return readEscape(in)
	}

	if !unicode.IsPrint(r) {
		return key{kind: keyUnknown, r: r}, nil
	}
	return key{kind: keyRune, r: r}, nil
}

// readEscape decodes CSI and SS3 cursor sequences
func readEscape(in *bufio.Reader) (key, error) {
	b, err := in.ReadByte()
	if err != nil {
		return key{}, err
	}
	if b != '[' && b != 'O' {
		return key{kind: keyUnknown, r: rune(b)}, nil
	}

	var params []byte
	for {
		c, err := in.ReadByte()
		if err != nil {
			return key{}, err
		}
		if c >= 0x40 && c <= 0x7e {
			return csiKey(string(params), c), nil
		}
		params = append(params, c)
	}
}

func csiKey(params string, final byte) key {
	switch final {
	case 'A':
		return key{kind: keyUp}
	case 'B':
		return key{kind: keyDown}
	case 'C':
		return key{kind: keyRight}
	case 'D':
		return key{kind: keyLeft}
	case 'H':
		return key{kind: keyHome}
	case 'F':
		return key{kind: keyEnd}
	case '~':
		switch params {
		case "1", "7":
			return key{kind: keyHome}
		case "4", "8":
			return key{kind: keyEnd}
		case "3":
			return key{kind: keyDelete}
		}
	}
	return key{kind: keyUnknown}
}
