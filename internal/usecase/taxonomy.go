package usecase

import (
	"strings"
	"unicode"
)

type categoryRule struct {
	category    string
	subcategory string
	keywords    []string
}

// Order matters: the first matching rule wins, so specific garments come
// before the generic ones they could be confused with.
var categoryRules = []categoryRule{
	{"dresses", "jumpsuits", []string{"jumpsuit", "romper", "playsuit"}},
	{"dresses", "dresses", []string{"dress", "gown", "kaftan"}},
	{"outerwear", "coats", []string{"coat", "parka", "trench", "overcoat"}},
	{"outerwear", "jackets", []string{"jacket", "blazer", "bomber", "gilet", "vest"}},
	{"tops", "t-shirts", []string{"t-shirt", "tee", "tank", "camisole"}},
	{"tops", "shirts", []string{"shirt", "blouse", "polo", "overshirt"}},
	{"tops", "knitwear", []string{"sweater", "jumper", "cardigan", "knit", "pullover"}},
	{"tops", "sweatshirts", []string{"hoodie", "sweatshirt", "crewneck"}},
	{"tops", "tops", []string{"top", "bodysuit", "corset"}},
	{"bottoms", "jeans", []string{"jean", "jeans", "denim"}},
	{"bottoms", "trousers", []string{"trouser", "trousers", "pant", "pants", "chino", "chinos", "jogger", "joggers", "legging", "leggings"}},
	{"bottoms", "shorts", []string{"short", "shorts"}},
	{"bottoms", "skirts", []string{"skirt", "skort"}},
	{"shoes", "sneakers", []string{"sneaker", "trainer", "runner"}},
	{"shoes", "boots", []string{"boot", "bootie"}},
	{"shoes", "sandals", []string{"sandal", "slide", "espadrille"}},
	{"shoes", "shoes", []string{"shoe", "loafer", "heel", "pump", "mule", "flat", "oxford", "derby"}},
	{"bags", "bags", []string{"bag", "tote", "backpack", "clutch", "crossbody", "purse", "wallet"}},
	{"jewelry", "jewelry", []string{"necklace", "ring", "earring", "bracelet", "pendant", "anklet"}},
	{"accessories", "accessories", []string{"hat", "cap", "beanie", "scarf", "belt", "sunglasses", "glove", "sock", "tie", "headband"}},
	{"swimwear", "swimwear", []string{"swimsuit", "bikini", "swimwear", "trunks"}},
	{"underwear", "underwear", []string{"bra", "brief", "boxer", "lingerie", "underwear"}},
}

type tagRule struct {
	tag      string
	keywords []string
}

var genderRules = []tagRule{
	{"women", []string{"women", "womens", "woman", "ladies", "female", "her"}},
	{"men", []string{"men", "mens", "man", "male", "him"}},
	{"kids", []string{"kids", "kid", "children", "girls", "boys", "baby", "toddler"}},
	{"unisex", []string{"unisex", "genderless"}},
}

var seasonRules = []tagRule{
	{"summer", []string{"summer", "ss"}},
	{"spring", []string{"spring"}},
	{"fall", []string{"fall", "autumn", "aw"}},
	{"winter", []string{"winter", "holiday"}},
}

var styleRules = []tagRule{
	{"casual", []string{"casual", "everyday", "relaxed"}},
	{"formal", []string{"formal", "tailored", "suit"}},
	{"minimalist", []string{"minimal", "minimalist", "essential", "basic"}},
	{"vintage", []string{"vintage", "retro"}},
	{"bohemian", []string{"boho", "bohemian"}},
	{"streetwear", []string{"streetwear", "graphic", "oversized"}},
	{"sporty", []string{"sport", "sporty", "athletic", "performance"}},
	{"elegant", []string{"elegant", "luxe", "luxury"}},
	{"classic", []string{"classic", "timeless", "heritage"}},
}

var materialRules = []tagRule{
	{"cotton", []string{"cotton"}},
	{"linen", []string{"linen"}},
	{"silk", []string{"silk"}},
	{"wool", []string{"wool", "merino"}},
	{"cashmere", []string{"cashmere"}},
	{"leather", []string{"leather"}},
	{"suede", []string{"suede"}},
	{"denim", []string{"denim"}},
	{"polyester", []string{"polyester", "recycled-polyester"}},
	{"viscose", []string{"viscose", "rayon"}},
	{"nylon", []string{"nylon"}},
	{"velvet", []string{"velvet"}},
	{"satin", []string{"satin"}},
	{"hemp", []string{"hemp"}},
}

var patternRules = []tagRule{
	{"striped", []string{"stripe", "striped", "stripes", "pinstripe"}},
	{"floral", []string{"floral", "flower", "flowers"}},
	{"plaid", []string{"plaid", "check", "checked", "tartan", "gingham"}},
	{"polka-dot", []string{"polka", "dot", "dots"}},
	{"animal", []string{"leopard", "zebra", "snake", "animal"}},
	{"camo", []string{"camo", "camouflage"}},
	{"paisley", []string{"paisley"}},
	{"solid", []string{"solid", "plain"}},
}

var occasionRules = []tagRule{
	{"work", []string{"work", "office", "workwear"}},
	{"party", []string{"party", "cocktail", "evening"}},
	{"wedding", []string{"wedding", "bridal", "bridesmaid"}},
	{"beach", []string{"beach", "resort", "vacation", "swim"}},
	{"lounge", []string{"lounge", "loungewear", "sleep", "pajama"}},
	{"active", []string{"gym", "workout", "training", "yoga", "running"}},
}

// terms is the tokenized, lower-cased word set of a text.
type terms map[string]bool

func tokenize(texts ...string) terms {
	t := make(terms)
	for _, text := range texts {
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
		}) {
			w = strings.Trim(w, "-")
			if w == "" {
				continue
			}
			t[w] = true
			if strings.Contains(w, "-") {
				t[strings.ReplaceAll(w, "-", "")] = true
			}
		}
	}
	return t
}

// has matches a keyword in singular or simple plural form.
func (t terms) has(keyword string) bool {
	return t[keyword] || t[keyword+"s"] || t[keyword+"es"]
}

func (t terms) any(keywords []string) bool {
	for _, k := range keywords {
		if t.has(k) {
			return true
		}
	}
	return false
}

func classifyCategory(t terms) (string, string) {
	for _, r := range categoryRules {
		if t.any(r.keywords) {
			return r.category, r.subcategory
		}
	}
	return "", ""
}

func firstTag(t terms, rules []tagRule) string {
	for _, r := range rules {
		if t.any(r.keywords) {
			return r.tag
		}
	}
	return ""
}

func allTags(t terms, rules []tagRule) []string {
	var out []string
	for _, r := range rules {
		if t.any(r.keywords) {
			out = append(out, r.tag)
		}
	}
	return out
}
