package fixture

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Provider produces locale-aware fake text. Implementations must be pure in
// (seed, locale, subtype, field, n); LLM-backed providers plug in here too.
type Provider interface {
	Strings(ctx context.Context, seed uint64, locale language.Tag, subtype, field string, n int) ([]string, error)
}

// DefaultProvider returns the built-in word-list provider.
func DefaultProvider() Provider { return wordProvider{} }

func stringDraw(m Metadata, p Provider) (drawFunc, error) {
	subtype := strings.ToLower(m.String("subtype", "text"))
	field := strings.ToLower(m.String("field", "sentence"))
	locale, err := language.Parse(m.String("locale", "en"))
	if err != nil {
		return nil, fmt.Errorf("metadata.locale: %w", err)
	}
	length, err := m.Int("length", 0)
	if err != nil {
		return nil, err
	}
	if _, ok := p.(wordProvider); ok && !supportedField(subtype, field) {
		return nil, fmt.Errorf("unsupported string field %s.%s", subtype, field)
	}
	return func(ctx context.Context, r *rand.Rand, size int) (column, error) {
		vals, err := p.Strings(ctx, r.Uint64(), locale, subtype, field, size)
		if err != nil {
			return nil, err
		}
		if length > 0 {
			for i, v := range vals {
				vals[i] = truncate(v, int(length))
			}
		}
		return rawStrings(vals), nil
	}, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

type wordProvider struct{}

var firstNames = map[language.Base][]string{
	mustBase("en"): {"walter", "hershel", "rudolf", "shirl", "jackeline", "ron", "martin", "afton", "keren", "zackary", "olivia", "amelia", "noah", "liam"},
	mustBase("de"): {"jürgen", "anneliese", "björn", "käthe", "dieter", "ursula", "matthias", "greta"},
	mustBase("fr"): {"élodie", "françois", "amélie", "étienne", "hélène", "benoît", "chloé", "théo"},
	mustBase("es"): {"josé", "lucía", "álvaro", "inés", "martín", "sofía", "ramón", "nuria"},
}

var lastNames = map[language.Base][]string{
	mustBase("en"): {"smith", "johnson", "carter", "mitchell", "brooks", "hayes", "foster", "reed"},
	mustBase("de"): {"müller", "schmidt", "weiß", "schäfer", "köhler", "groß", "bauer"},
	mustBase("fr"): {"dupont", "lefèvre", "moreau", "girard", "rousseau", "bonnet"},
	mustBase("es"): {"garcía", "fernández", "lópez", "martínez", "sánchez", "pérez"},
}

var words = []string{
	"amber", "signal", "harbor", "quiet", "lattice", "meadow", "vector", "copper",
	"orbit", "willow", "cinder", "fable", "granite", "hollow", "ivory", "juniper",
	"kernel", "lumen", "marble", "nectar", "onyx", "prairie", "quartz", "river",
}

var cities = []string{"springfield", "riverton", "lakeside", "fairview", "greenville", "kingston", "ashford", "milton"}

var countries = []string{"canada", "germany", "france", "spain", "japan", "brazil", "kenya", "norway"}

var domains = []string{"example.com", "example.org", "example.net", "test.io", "sample.dev"}

var streetSuffixes = []string{"street", "avenue", "road", "lane", "way", "court"}

func mustBase(s string) language.Base {
	b, err := language.ParseBase(s)
	if err != nil {
		panic(err)
	}
	return b
}

var providerFields = map[string][]string{
	"person":   {"first_name", "last_name", "full_name", "name"},
	"text":     {"word", "words", "sentence", "title", "text"},
	"address":  {"city", "country", "street_name", "address", "postal_code"},
	"internet": {"email", "username", "domain", "url", "hostname"},
}

func supportedField(subtype, field string) bool {
	for _, f := range providerFields[subtype] {
		if f == field {
			return true
		}
	}
	return false
}

func (wordProvider) Strings(ctx context.Context, seed uint64, locale language.Tag, subtype, field string, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !supportedField(subtype, field) {
		return nil, fmt.Errorf("unsupported string field %s.%s", subtype, field)
	}
	r := rand.New(rand.NewPCG(seed, 0))
	base, _ := locale.Base()
	title := cases.Title(locale)
	lower := cases.Lower(locale)

	firsts, ok := firstNames[base]
	if !ok {
		firsts = firstNames[mustBase("en")]
	}
	lasts, ok := lastNames[base]
	if !ok {
		lasts = lastNames[mustBase("en")]
	}
	pick := func(list []string) string { return list[r.IntN(len(list))] }
	phrase := func(k int) string {
		parts := make([]string, k)
		for i := range parts {
			parts[i] = pick(words)
		}
		return strings.Join(parts, " ")
	}

	out := make([]string, n)
	for i := range out {
		var v string
		switch subtype + "." + field {
		case "person.first_name":
			v = title.String(pick(firsts))
		case "person.last_name":
			v = title.String(pick(lasts))
		case "person.full_name", "person.name":
			v = title.String(pick(firsts) + " " + pick(lasts))
		case "text.word":
			v = pick(words)
		case "text.words":
			v = phrase(3)
		case "text.title":
			v = title.String(phrase(2 + r.IntN(3)))
		case "text.sentence":
			s := phrase(4 + r.IntN(6))
			first, size := utf8.DecodeRuneInString(s)
			v = title.String(string(first)) + s[size:] + "."
		case "text.text":
			v = phrase(12+r.IntN(12)) + "."
		case "address.city":
			v = title.String(pick(cities))
		case "address.country":
			v = title.String(pick(countries))
		case "address.street_name":
			v = title.String(pick(words) + " " + pick(streetSuffixes))
		case "address.address":
			v = fmt.Sprintf("%d %s", 1+r.IntN(9999), title.String(pick(words)+" "+pick(streetSuffixes)))
		case "address.postal_code":
			v = fmt.Sprintf("%05d", r.IntN(100000))
		case "internet.username":
			v = lower.String(pick(firsts)) + fmt.Sprint(r.IntN(1000))
		case "internet.email":
			v = lower.String(pick(firsts)+"."+pick(lasts)) + "@" + pick(domains)
		case "internet.domain":
			v = pick(words) + "." + pick(domains)
		case "internet.hostname":
			v = pick(words) + "-" + fmt.Sprint(r.IntN(100)) + "." + pick(domains)
		case "internet.url":
			v = "https://" + pick(domains) + "/" + pick(words)
		}
		out[i] = v
	}
	return out, nil
}
