package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dreamware/scenesync/internal/scene"
)

var (
	// ErrEmpty is returned by Parse for a zero-length message.
	ErrEmpty = errors.New("empty control message")
	// ErrUnknownTarget means the selector byte does not name a configured box.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrUnknownOperation means the operation byte is missing or not recognised.
	ErrUnknownOperation = errors.New("unknown operation")
	// ErrMalformedPayload means the numeric part could not be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Op selects which group of fields a delta applies to.
type Op byte

const (
	// OpPosition adds the delta to posX, posY, posZ.
	OpPosition Op = '0'
	// OpRotation adds the delta to rotAlpha, rotBeta, rotGamma.
	OpRotation Op = '1'
)

func (o Op) String() string {
	switch o {
	case OpPosition:
		return "position"
	case OpRotation:
		return "rotation"
	default:
		return fmt.Sprintf("op(%q)", byte(o))
	}
}

// Command is a fully parsed control message.
type Command struct {
	Target int
	Op     Op
	Delta  scene.Vec3
}

// Selectors maps selector bytes to box indices.
type Selectors struct {
	index map[byte]int
}

// NewSelectors builds a selector table from an explicit byte-to-index map.
func NewSelectors(m map[byte]int) Selectors {
	index := make(map[byte]int, len(m))
	for k, v := range m {
		index[k] = v
	}
	return Selectors{index: index}
}

// SelectorsFromConfig maps each configured selector to its box's position
// in the scene.
func SelectorsFromConfig(cfg scene.Config) Selectors {
	index := make(map[byte]int, len(cfg.Boxes))
	for i, b := range cfg.Boxes {
		if len(b.Selector) == 1 {
			index[b.Selector[0]] = i
		}
	}
	return Selectors{index: index}
}

// Lookup returns the box index for a selector byte.
func (s Selectors) Lookup(b byte) (int, bool) {
	i, ok := s.index[b]
	return i, ok
}

// Len returns the number of configured selectors.
func (s Selectors) Len() int {
	return len(s.index)
}

// Parse decodes one control message. It never touches scene state.
func Parse(msg []byte, sel Selectors) (Command, error) {
	if len(msg) == 0 {
		return Command{}, ErrEmpty
	}

	target, ok := sel.Lookup(msg[0])
	if !ok {
		return Command{}, fmt.Errorf("%w %q", ErrUnknownTarget, msg[0])
	}

	if len(msg) < 2 {
		return Command{}, fmt.Errorf("%w: missing operation byte", ErrUnknownOperation)
	}
	op := Op(msg[1])
	if op != OpPosition && op != OpRotation {
		return Command{}, fmt.Errorf("%w %q", ErrUnknownOperation, msg[1])
	}

	delta, err := parseTriple(string(msg[2:]))
	if err != nil {
		return Command{}, err
	}

	return Command{Target: target, Op: op, Delta: delta}, nil
}

// parseTriple reads the first three whitespace-separated numbers. Anything
// after the third number is ignored.
func parseTriple(payload string) (scene.Vec3, error) {
	var out scene.Vec3

	fields := strings.Fields(payload)
	if len(fields) < len(out) {
		return out, fmt.Errorf("%w: want 3 numbers, got %d", ErrMalformedPayload, len(fields))
	}

	for i := range out {
		if !isDecimal(fields[i]) {
			return scene.Vec3{}, fmt.Errorf("%w: component %d %q is not a decimal number", ErrMalformedPayload, i, fields[i])
		}
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return scene.Vec3{}, fmt.Errorf("%w: component %d %q", ErrMalformedPayload, i, fields[i])
		}
		out[i] = float32(f)
	}
	return out, nil
}

// isDecimal reports whether tok is a plain decimal number: an optional sign,
// digits with at most one point, and an optional exponent. ParseFloat alone
// would also take hex floats, underscores, "inf" and "NaN".
func isDecimal(tok string) bool {
	i := 0
	if i < len(tok) && (tok[i] == '+' || tok[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(tok) && isDigit(tok[i]); i++ {
		digits++
	}
	if i < len(tok) && tok[i] == '.' {
		i++
		for ; i < len(tok) && isDigit(tok[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < len(tok) && (tok[i] == 'e' || tok[i] == 'E') {
		i++
		if i < len(tok) && (tok[i] == '+' || tok[i] == '-') {
			i++
		}
		exp := 0
		for ; i < len(tok) && isDigit(tok[i]); i++ {
			exp++
		}
		if exp == 0 {
			return false
		}
	}
	return i == len(tok)
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }
