package proggen

// Template is a named source skeleton for one category: one body and one
// human-readable description shared by all of its variants, which only
// change the generated program's name. The full original catalog
// (original_source/src/user/templates/__init__.py, ~66KB) is an opaque
// string producer per SPEC_FULL.md §9; this is a reduced four-category
// catalog that preserves the category/variant/complexity shape the rest of
// the system depends on.
type Template struct {
	Name        string
	NamePattern string // formatted with the chosen Variant
	Variants    []string
	Complexity  string
	Description string
	Skeleton    string // complete Go source, used verbatim as the program source
}

// Catalog maps category -> available templates.
var Catalog = map[string][]Template{
	"math": {
		{
			Name: "summation", NamePattern: "sum_%s", Variants: []string{"ints", "floats"},
			Complexity: "simple", Description: "adds a fixed list of numbers and prints the total",
			Skeleton: goSkeleton("sums a short list of numbers", "nums := []int{2, 4, 6, 8, 10}\n\ttotal := 0\n\tfor _, n := range nums {\n\t\ttotal += n\n\t}\n\tfmt.Println(total)"),
		},
	},
	"text": {
		{
			Name: "reverser", NamePattern: "reverse_%s", Variants: []string{"words", "lines"},
			Complexity: "simple", Description: "reverses a short string",
			Skeleton: goSkeleton("reverses a fixed string", "s := \"zapempire\"\n\trunes := []rune(s)\n\tfor i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {\n\t\trunes[i], runes[j] = runes[j], runes[i]\n\t}\n\tfmt.Println(string(runes))"),
		},
	},
	"utilities": {
		{
			Name: "counter", NamePattern: "count_%s", Variants: []string{"vowels", "digits"},
			Complexity: "medium", Description: "counts occurrences of a character class in a fixed string",
			Skeleton: goSkeleton("counts vowels in a fixed string", "s := \"the quick brown fox\"\n\tcount := 0\n\tfor _, r := range s {\n\t\tswitch r {\n\t\tcase 'a', 'e', 'i', 'o', 'u':\n\t\t\tcount++\n\t\t}\n\t}\n\tfmt.Println(count)"),
		},
	},
	"validators": {
		{
			Name: "rangecheck", NamePattern: "check_%s", Variants: []string{"bounds", "parity"},
			Complexity: "simple", Description: "validates a fixed value against a rule and prints the verdict",
			Skeleton: goSkeleton("checks whether a fixed value is even", "n := 42\n\tif n%2 == 0 {\n\t\tfmt.Println(\"even\")\n\t} else {\n\t\tfmt.Println(\"odd\")\n\t}"),
		},
	},
}

// ComplexityMultipliers scale a program's base price by complexity tier,
// mirrored from internal/strategy.ComplexityFactors so proggen does not
// import strategy for a single lookup.
var ComplexityMultipliers = map[string]float64{
	"simple":  0.5,
	"medium":  1.0,
	"complex": 2.0,
}

func goSkeleton(description, mainBody string) string {
	return "package main\n\n// " + description + "\n\nimport \"fmt\"\n\nfunc main() {\n\t" + mainBody + "\n}\n"
}
