package actionmesh

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/actionmesh/generator"
	"github.com/hupe1980/actionmesh/generator/anthropic"
	"github.com/hupe1980/actionmesh/generator/deepseek"
	"github.com/hupe1980/actionmesh/generator/gemini"
	"github.com/hupe1980/actionmesh/generator/groq"
	"github.com/hupe1980/actionmesh/generator/openai"
)

// GeneratorSpec is the parsed form of "provider://model[@host[:port]]".
type GeneratorSpec struct {
	Provider string
	Model    string
	Endpoint string
	Port     uint16
}

// String returns the provider://model[@host[:port]] form.
func (s GeneratorSpec) String() string {
	out := s.Provider + "://" + s.Model
	if s.Endpoint != "" {
		out += "@" + s.Endpoint
		if s.Port != 0 {
			out += ":" + strconv.Itoa(int(s.Port))
		}
	}
	return out
}

// ParseGeneratorSpec parses "provider://model[@host[:port]]". The model may
// itself contain '@', ':' or '/'; only the last '@' separates the host.
func ParseGeneratorSpec(raw string) (GeneratorSpec, error) {
	provider, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || provider == "" {
		return GeneratorSpec{}, fmt.Errorf("invalid generator %q: expected provider://model", raw)
	}
	spec := GeneratorSpec{Provider: strings.ToLower(provider), Model: rest}

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		spec.Model = rest[:i]
		host := rest[i+1:]
		if h, p, err := net.SplitHostPort(host); err == nil {
			port, err := strconv.ParseUint(p, 10, 16)
			if err != nil {
				return GeneratorSpec{}, fmt.Errorf("invalid generator %q: bad port %q", raw, p)
			}
			host, spec.Port = h, uint16(port)
		}
		spec.Endpoint = host
	}
	if spec.Model == "" {
		return GeneratorSpec{}, fmt.Errorf("invalid generator %q: missing model", raw)
	}
	return spec, nil
}

type generatorFactory func(optFns ...func(o *generator.Options)) (generator.Client, error)

// factory converts a typed constructor, keeping a nil client nil on error.
func factory[C generator.Client](newFn func(optFns ...func(o *generator.Options)) (C, error)) generatorFactory {
	return func(optFns ...func(o *generator.Options)) (generator.Client, error) {
		c, err := newFn(optFns...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func generatorFactories() map[string]generatorFactory {
	return map[string]generatorFactory{
		openai.OpenAI.Provider:    factory(openai.New),
		groq.Profile.Provider:     factory(groq.New),
		deepseek.Profile.Provider: factory(deepseek.New),
		anthropic.Provider:        factory(anthropic.New),
		gemini.Provider:           factory(gemini.New),
	}
}

// Providers lists the provider names NewGenerator accepts.
func Providers() []string {
	names := make([]string, 0, 5)
	for name := range generatorFactories() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewGenerator creates the client named by a generator spec string. Options
// given by the caller are applied after the ones derived from the spec.
func NewGenerator(raw string, optFns ...func(o *generator.Options)) (generator.Client, error) {
	spec, err := ParseGeneratorSpec(raw)
	if err != nil {
		return nil, err
	}
	newFn, ok := generatorFactories()[spec.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown generator provider %q (supported: %s)", spec.Provider, strings.Join(Providers(), ", "))
	}

	base := func(o *generator.Options) {
		o.Model = spec.Model
		o.Endpoint = spec.Endpoint
		o.Port = spec.Port
	}
	return newFn(append([]func(o *generator.Options){base}, optFns...)...)
}
