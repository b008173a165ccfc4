package platform

import (
	"bytes"
	"encoding/json"
	"html"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Text decodes the loosely typed string fields found in storefront JSON:
// plain strings, numbers, single-element arrays and {"name": ...} objects.
type Text string

// UnmarshalJSON implements json.Unmarshaler. Unknown shapes decode to "".
func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Text(strings.TrimSpace(html.UnescapeString(s)))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Text(n.String())
		return nil
	}
	var list []Text
	if err := json.Unmarshal(b, &list); err == nil {
		if len(list) > 0 {
			*t = list[0]
		}
		return nil
	}
	var obj struct {
		Name  Text `json:"name"`
		Value Text `json:"@value"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		*t = obj.Name
		if *t == "" {
			*t = obj.Value
		}
	}
	return nil
}

func (t Text) String() string { return string(t) }

// JSONLDProduct is the subset of a schema.org Product or ProductGroup node we read.
type JSONLDProduct struct {
	Type           json.RawMessage `json:"@type"`
	Name           Text            `json:"name"`
	Description    Text            `json:"description"`
	SKU            Text            `json:"sku"`
	ProductGroupID Text            `json:"productGroupID"`
	Category       Text            `json:"category"`
	Color          Text            `json:"color"`
	Size           Text            `json:"size"`
	Material       Text            `json:"material"`
	Pattern        Text            `json:"pattern"`
	Image          json.RawMessage `json:"image"`
	Offers         json.RawMessage `json:"offers"`
	HasVariant     []JSONLDProduct `json:"hasVariant"`
}

// JSONLDOffer is a schema.org Offer or AggregateOffer.
type JSONLDOffer struct {
	Price         Text            `json:"price"`
	LowPrice      Text            `json:"lowPrice"`
	PriceCurrency Text            `json:"priceCurrency"`
	Availability  Text            `json:"availability"`
	SKU           Text            `json:"sku"`
	Offers        json.RawMessage `json:"offers"`
}

// IsGroup reports whether the node is a ProductGroup.
func (p *JSONLDProduct) IsGroup() bool {
	for _, t := range typeNames(p.Type) {
		if t == "ProductGroup" {
			return true
		}
	}
	return false
}

// OfferList flattens offers, expanding AggregateOffer children.
func (p *JSONLDProduct) OfferList() []JSONLDOffer {
	return decodeOffers(p.Offers, 0)
}

// Images returns image URLs from string, array and ImageObject forms.
func (p *JSONLDProduct) Images() []string {
	return decodeImages(p.Image)
}

func decodeOffers(raw json.RawMessage, depth int) []JSONLDOffer {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || depth > 2 {
		return nil
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		var out []JSONLDOffer
		for _, item := range items {
			out = append(out, decodeOffers(item, depth+1)...)
		}
		return out
	}
	var o JSONLDOffer
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil
	}
	if nested := decodeOffers(o.Offers, depth+1); len(nested) > 0 {
		return nested
	}
	return []JSONLDOffer{o}
}

func decodeImages(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return []string{s}
		}
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, item := range list {
			out = append(out, decodeImages(item)...)
		}
		return out
	}
	var obj struct {
		URL        string `json:"url"`
		ContentURL string `json:"contentUrl"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.URL != "" {
			return []string{obj.URL}
		}
		if obj.ContentURL != "" {
			return []string{obj.ContentURL}
		}
	}
	return nil
}

// PriceValue returns the offer price, falling back to lowPrice.
func (o JSONLDOffer) PriceValue() *float64 {
	if p := ParsePrice(string(o.Price)); p != nil {
		return p
	}
	return ParsePrice(string(o.LowPrice))
}

// InStock maps schema.org availability to a stock flag, nil when unknown.
func (o JSONLDOffer) InStock() *bool {
	a := strings.ToLower(string(o.Availability))
	var v bool
	switch {
	case a == "":
		return nil
	case strings.Contains(a, "outofstock"), strings.Contains(a, "soldout"), strings.Contains(a, "discontinued"):
		v = false
	case strings.Contains(a, "instock"), strings.Contains(a, "limitedavailability"),
		strings.Contains(a, "preorder"), strings.Contains(a, "onlineonly"):
		v = true
	default:
		return nil
	}
	return &v
}

// ParsePrice reads a price string such as "1,299.00", "1.299,00" or "€ 49".
// It returns nil when no number can be read.
func ParsePrice(s string) *float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	num := b.String()
	if num == "" {
		return nil
	}
	dot, comma := strings.LastIndex(num, "."), strings.LastIndex(num, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		num = strings.ReplaceAll(num, ".", "")
		num = strings.Replace(num, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		num = strings.ReplaceAll(num, ",", "")
	case comma >= 0 && len(num)-comma-1 == 2 && strings.Count(num, ",") == 1:
		num = strings.Replace(num, ",", ".", 1)
	default:
		num = strings.ReplaceAll(num, ",", "")
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil
	}
	return &v
}

// FindProductJSONLD returns the first Product node embedded in the document's
// ld+json scripts. ProductGroup nodes win over plain Product nodes.
func FindProductJSONLD(doc *goquery.Document) json.RawMessage {
	var product, group json.RawMessage
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return true
		}
		walkJSONLD(v, func(node map[string]any, isGroup bool) {
			raw, err := json.Marshal(node)
			if err != nil {
				return
			}
			if isGroup && group == nil {
				group = raw
			} else if !isGroup && product == nil {
				product = raw
			}
		})
		return group == nil
	})
	if group != nil {
		return group
	}
	return product
}

func walkJSONLD(v any, visit func(node map[string]any, isGroup bool)) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			walkJSONLD(item, visit)
		}
	case map[string]any:
		raw, _ := json.Marshal(t["@type"])
		for _, name := range typeNames(raw) {
			switch name {
			case "ProductGroup":
				visit(t, true)
				return
			case "Product", "IndividualProduct", "ProductModel":
				visit(t, false)
				return
			}
		}
		if graph, ok := t["@graph"]; ok {
			walkJSONLD(graph, visit)
		}
	}
}

func typeNames(raw json.RawMessage) []string {
	var names []string
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		names = []string{one}
	} else {
		_ = json.Unmarshal(raw, &names)
	}
	for i, n := range names {
		n = strings.TrimSpace(n)
		if j := strings.LastIndex(n, "/"); j >= 0 {
			n = n[j+1:]
		}
		names[i] = n
	}
	return names
}
