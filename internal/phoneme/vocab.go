package phoneme

// The model's token vocabulary is positional: a symbol's token value is its
// rune index in the concatenated symbol string below. The table is fixed by
// the trained model and must not be reordered.

const (
	pad         = "$"
	punctuation = ";:,.!?¡¿—…\"«»“” "
	letters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	lettersIPA  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'̩'ᵻ"
)

const (
	// PadToken frames a token sequence: one copy is prepended and appended
	// before inference.
	PadToken int64 = 0

	// SilenceToken, repeated N times at the head of the first chunk's
	// tokens, asks the model for N units of leading silence.
	SilenceToken int64 = 30
)

var (
	vocab        map[rune]int64
	reverseVocab map[int64]rune
)

func init() {
	vocab = make(map[rune]int64)
	reverseVocab = make(map[int64]rune)
	idx := int64(0)
	for _, r := range pad + punctuation + letters + lettersIPA {
		vocab[r] = idx
		reverseVocab[idx] = r
		idx++
	}
}

// Tokenize converts a phoneme string into model token values. Runes outside
// the vocabulary are dropped, never substituted.
func Tokenize(phonemes string) []int64 {
	tokens := make([]int64, 0, len(phonemes))
	for _, r := range phonemes {
		if t, ok := vocab[r]; ok {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Decode maps token values back to their symbols, dropping unknown values.
// Used for diagnostics only.
func Decode(tokens []int64) string {
	runes := make([]rune, 0, len(tokens))
	for _, t := range tokens {
		if r, ok := reverseVocab[t]; ok {
			runes = append(runes, r)
		}
	}
	return string(runes)
}

// Pad frames tokens with the boundary marker at both ends, as the model
// contract requires.
func Pad(tokens []int64) []int64 {
	padded := make([]int64, 0, len(tokens)+2)
	padded = append(padded, PadToken)
	padded = append(padded, tokens...)
	padded = append(padded, PadToken)
	return padded
}

// WithLeadingSilence prepends n silence tokens. Applied only to a request's
// first chunk.
func WithLeadingSilence(tokens []int64, n int) []int64 {
	if n <= 0 {
		return tokens
	}
	out := make([]int64, 0, len(tokens)+n)
	for i := 0; i < n; i++ {
		out = append(out, SilenceToken)
	}
	return append(out, tokens...)
}
