package faker

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"time"
)

// Generator is a seedable source of synthetic data. It is safe for
// concurrent use; every call draws from one PCG stream guarded by a mutex.
type Generator struct {
	mu   sync.Mutex
	rng  *mathrand.Rand
	seed uint64

	// Now is the reference time for date methods. Defaults to time.Now.
	Now func() time.Time
}

// New returns a generator seeded with seed. A zero seed picks a random one.
func New(seed uint64) *Generator {
	if seed == 0 {
		seed = RandomSeed()
	}
	return &Generator{
		rng:  mathrand.New(mathrand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
		Now:  time.Now,
	}
}

// RandomSeed returns a non-zero seed from crypto/rand.
func RandomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano()) | 1
	}
	return binary.LittleEndian.Uint64(b[:]) | 1
}

// Seed returns the seed the generator was created with.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// IntN returns a random int in [0, n). n <= 0 yields 0.
func (g *Generator) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// IntRange returns a random int in [lo, hi].
func (g *Generator) IntRange(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo + g.IntN(hi-lo+1)
}

// Float64 returns a random float in [0, 1).
func (g *Generator) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// Bool returns a random boolean.
func (g *Generator) Bool() bool {
	return g.IntN(2) == 1
}

// Pick returns a random element of list.
func (g *Generator) Pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[g.IntN(len(list))]
}

// Element returns a random element of a generic slice.
func (g *Generator) Element(list []any) any {
	if len(list) == 0 {
		return nil
	}
	return list[g.IntN(len(list))]
}

// Chars returns n characters drawn from alphabet.
func (g *Generator) Chars(alphabet string, n int) string {
	if n <= 0 || alphabet == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[g.IntN(len(alphabet))])
	}
	return sb.String()
}

// UUID returns a version 4 UUID drawn from the seeded stream, so seeded
// generators produce reproducible ids.
func (g *Generator) UUID() string {
	var b [16]byte
	for i := range b {
		b[i] = byte(g.IntN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// ObjectID returns a 24 hex character MongoDB-style object id.
func (g *Generator) ObjectID() string {
	ts := uint32(g.now().Unix())
	return fmt.Sprintf("%08x", ts) + g.Chars(hexDigits, 16)
}

// Shuffle returns a shuffled copy of list.
func (g *Generator) Shuffle(list []any) []any {
	out := make([]any, len(list))
	copy(out, list)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// FirstName returns a random first name.
func (g *Generator) FirstName() string { return g.Pick(firstNames) }

// LastName returns a random last name.
func (g *Generator) LastName() string { return g.Pick(lastNames) }

// IPv4 returns a random IPv4 address.
func (g *Generator) IPv4() string {
	return fmt.Sprintf("%d.%d.%d.%d", g.IntN(256), g.IntN(256), g.IntN(256), g.IntN(256))
}

// IPv6 returns a random IPv6 address in full expanded notation.
func (g *Generator) IPv6() string {
	groups := make([]string, 8)
	for i := range groups {
		groups[i] = fmt.Sprintf("%04x", g.IntN(65536))
	}
	return strings.Join(groups, ":")
}

// MAC returns a random MAC address.
func (g *Generator) MAC() string {
	parts := make([]string, 6)
	for i := range parts {
		parts[i] = fmt.Sprintf("%02x", g.IntN(256))
	}
	return strings.Join(parts, ":")
}

// CreditCard returns a Luhn-valid 16-digit card number with a Visa-like prefix.
func (g *Generator) CreditCard() string {
	d := make([]int, 16)
	d[0] = 4
	for i := 1; i < 15; i++ {
		d[i] = g.IntN(10)
	}
	sum := 0
	for i := 0; i < 15; i++ {
		v := d[i]
		if i%2 == 0 {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		sum += v
	}
	d[15] = (10 - sum%10) % 10

	var sb strings.Builder
	for _, v := range d {
		sb.WriteByte(byte('0' + v))
	}
	return sb.String()
}

// IBAN returns a structurally plausible IBAN.
func (g *Generator) IBAN() string {
	p := ibanPrefixes[g.IntN(len(ibanPrefixes))]
	remaining := p.length - len(p.country) - 2 - len(p.bankPrefix)
	return p.country + fmt.Sprintf("%02d", g.IntN(90)+10) + p.bankPrefix + g.Chars(digits, remaining)
}

// Words returns n lorem words.
func (g *Generator) Words(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = g.Pick(loremWords)
	}
	return out
}

// Sentence returns a capitalized lorem sentence of n words.
func (g *Generator) Sentence(n int) string {
	if n <= 0 {
		n = 3 + g.IntN(8)
	}
	s := strings.Join(g.Words(n), " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

// Paragraph returns a paragraph of n sentences.
func (g *Generator) Paragraph(n int) string {
	if n <= 0 {
		n = 3
	}
	out := make([]string, n)
	for i := range out {
		out[i] = g.Sentence(0)
	}
	return strings.Join(out, " ")
}

// DateBetween returns a random time in [from, to].
func (g *Generator) DateBetween(from, to time.Time) time.Time {
	if to.Before(from) {
		from, to = to, from
	}
	span := to.Sub(from)
	if span <= 0 {
		return from
	}
	g.mu.Lock()
	offset := time.Duration(g.rng.Int64N(int64(span) + 1))
	g.mu.Unlock()
	return from.Add(offset)
}
