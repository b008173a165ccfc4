package usecase

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/platform"
	"github.com/user/catalog-service/pkg/utils"
)

// Normalizer maps raw adapter payloads onto the canonical product schema.
type Normalizer interface {
	Normalize(brand *entity.Brand, platformID string, raw *entity.RawProduct) (*entity.Product, error)
}

type normalizer struct{}

// NewNormalizer creates the deterministic keyword-based normalizer.
func NewNormalizer() Normalizer {
	return &normalizer{}
}

// Normalize fails with a "no product" error, which classifies as soft, when
// the payload has no usable product.
func (n *normalizer) Normalize(brand *entity.Brand, platformID string, raw *entity.RawProduct) (*entity.Product, error) {
	var (
		p   *entity.Product
		err error
	)
	switch raw.Source {
	case entity.SourceShopify:
		p, err = fromShopify(raw.Payload)
	case entity.SourceJSONLD:
		p, err = fromJSONLD(raw.Payload)
	case entity.SourceLLM:
		p, err = fromExtraction(raw.Payload)
	default:
		return nil, fmt.Errorf("unsupported raw product source %q", raw.Source)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("no product name in %s payload for %s", raw.Source, raw.URL)
	}

	p.BrandID = brand.ID
	p.SourceURL = raw.URL
	p.Platform = platformID
	p.ExternalID = raw.ExternalID
	if p.ExternalID == "" {
		p.ExternalID = urlExternalID(raw.URL)
	}
	if len(p.Variants) == 0 {
		p.Variants = []entity.Variant{{StockStatus: entity.StockUnknown}}
	}
	for i := range p.Variants {
		v := &p.Variants[i]
		v.Price = entity.SanePrice(v.Price)
		if v.StockStatus == "" {
			v.StockStatus = entity.StockUnknown
		}
		if v.VariantKey == "" {
			v.VariantKey = variantKey(v.SKU, v.Color, v.Size, v.Fit, v.Material)
		}
	}
	dedupeVariantKeys(p.Variants)
	if p.CoverImage == "" {
		for _, v := range p.Variants {
			if len(v.Images) > 0 {
				p.CoverImage = v.Images[0]
				break
			}
		}
	}
	return p, nil
}

// tagProduct applies the keyword taxonomy. Category and gender read only the
// short fields; descriptions are too noisy for them.
func tagProduct(p *entity.Product, shortText, longText string) {
	short := tokenize(shortText)
	all := tokenize(shortText, longText)
	p.Category, p.Subcategory = classifyCategory(short)
	p.Gender = firstTag(short, genderRules)
	p.Season = firstTag(all, seasonRules)
	p.StyleTags = allTags(all, styleRules)
	p.MaterialTags = allTags(all, materialRules)
	p.PatternTags = allTags(all, patternRules)
	p.OccasionTags = allTags(all, occasionRules)
}

func fromShopify(payload json.RawMessage) (*entity.Product, error) {
	var sp platform.ShopifyProduct
	if err := json.Unmarshal(payload, &sp); err != nil {
		return nil, fmt.Errorf("no product: decode shopify payload: %w", err)
	}

	p := &entity.Product{
		Name:        strings.TrimSpace(sp.Title),
		Description: plainText(sp.BodyHTML),
	}
	tagProduct(p, strings.Join(append([]string{sp.Title, sp.ProductType}, sp.Tags...), " "), p.Description)

	switch {
	case sp.Image != nil && sp.Image.Src != "":
		p.CoverImage = sp.Image.Src
	case len(sp.Images) > 0:
		p.CoverImage = sp.Images[0].Src
	}

	roles := make([]string, 3)
	for i, o := range sp.Options {
		pos := o.Position
		if pos < 1 || pos > 3 {
			pos = i + 1
		}
		if pos <= 3 {
			roles[pos-1] = optionRole(o.Name)
		}
	}

	for _, sv := range sp.Variants {
		v := entity.Variant{
			SKU:      strings.TrimSpace(sv.SKU),
			Price:    platform.ParsePrice(sv.Price.String()),
			Currency: strings.ToUpper(sv.PriceCurrency),
		}
		for i, val := range sv.OptionValues() {
			if val == "" || strings.EqualFold(val, "Default Title") {
				continue
			}
			switch roles[i] {
			case "color":
				v.Color = val
			case "size":
				v.Size = val
			case "fit":
				v.Fit = val
			case "material":
				v.Material = val
			}
		}
		if sv.InventoryQuantity != nil {
			count := max(*sv.InventoryQuantity, 0)
			v.StockCount = &count
		}
		v.StockStatus = stockStatus(sv.Available, v.StockCount)
		if sv.FeaturedImage != nil && sv.FeaturedImage.Src != "" {
			v.Images = []string{sv.FeaturedImage.Src}
		} else {
			for _, img := range sp.Images {
				if (sv.ImageID != nil && img.ID == *sv.ImageID) || slices.Contains(img.VariantIDs, sv.ID) {
					v.Images = append(v.Images, img.Src)
				}
			}
		}
		if sv.ID != 0 {
			v.VariantKey = "shopify:" + strconv.FormatInt(sv.ID, 10)
		}
		p.Variants = append(p.Variants, v)
	}
	return p, nil
}

func fromJSONLD(payload json.RawMessage) (*entity.Product, error) {
	var jp platform.JSONLDProduct
	if err := json.Unmarshal(payload, &jp); err != nil {
		return nil, fmt.Errorf("no product: decode json-ld payload: %w", err)
	}

	p := &entity.Product{
		Name:        jp.Name.String(),
		Description: plainText(jp.Description.String()),
	}
	tagProduct(p, jp.Name.String()+" "+jp.Category.String(), p.Description+" "+jp.Material.String()+" "+jp.Pattern.String())
	if images := jp.Images(); len(images) > 0 {
		p.CoverImage = images[0]
	}

	switch {
	case len(jp.HasVariant) > 0:
		for _, jv := range jp.HasVariant {
			v := jsonldVariant(jv.SKU, jv.Color, jv.Size, jv.Material, jv.OfferList())
			v.Images = jv.Images()
			p.Variants = append(p.Variants, v)
		}
	default:
		offers := jp.OfferList()
		if len(offers) > 1 && distinctOfferSKUs(offers) {
			for _, o := range offers {
				p.Variants = append(p.Variants, jsonldVariant(o.SKU, jp.Color, jp.Size, jp.Material, []platform.JSONLDOffer{o}))
			}
		} else {
			p.Variants = append(p.Variants, jsonldVariant(jp.SKU, jp.Color, jp.Size, jp.Material, offers))
		}
	}
	return p, nil
}

func jsonldVariant(sku, color, size, material platform.Text, offers []platform.JSONLDOffer) entity.Variant {
	v := entity.Variant{
		SKU:      sku.String(),
		Color:    color.String(),
		Size:     size.String(),
		Material: material.String(),
	}
	if len(offers) > 0 {
		o := offers[0]
		v.Price = o.PriceValue()
		v.Currency = strings.ToUpper(o.PriceCurrency.String())
		if v.SKU == "" {
			v.SKU = o.SKU.String()
		}
		v.StockStatus = stockStatus(o.InStock(), nil)
	}
	return v
}

func fromExtraction(payload json.RawMessage) (*entity.Product, error) {
	var ex entity.Extraction
	if err := json.Unmarshal(payload, &ex); err != nil {
		return nil, fmt.Errorf("no product: decode extraction payload: %w", err)
	}

	p := &entity.Product{
		Name:        strings.TrimSpace(ex.Title),
		Description: plainText(ex.Description),
	}
	var materials []string
	for _, ev := range ex.Variants {
		materials = append(materials, ev.Material)
	}
	tagProduct(p, ex.Title, p.Description+" "+strings.Join(materials, " "))
	if len(ex.Images) > 0 {
		p.CoverImage = ex.Images[0]
	}

	for _, ev := range ex.Variants {
		p.Variants = append(p.Variants, entity.Variant{
			SKU:         ev.SKU,
			Color:       ev.Color,
			Size:        ev.Size,
			Fit:         ev.Fit,
			Material:    ev.Material,
			Price:       ev.Price,
			Currency:    strings.ToUpper(ev.Currency),
			StockStatus: stockStatus(ev.InStock, nil),
		})
	}
	return p, nil
}

func optionRole(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "color", "colour", "farbe", "couleur", "shade":
		return "color"
	case "size", "größe", "taille", "length", "waist":
		return "size"
	case "fit", "cut":
		return "fit"
	case "material", "fabric":
		return "material"
	}
	return ""
}

func stockStatus(available *bool, count *int) string {
	switch {
	case available != nil && *available:
		return entity.StockInStock
	case available != nil:
		return entity.StockOutOfStock
	case count != nil && *count > 0:
		return entity.StockInStock
	case count != nil:
		return entity.StockOutOfStock
	}
	return entity.StockUnknown
}

func variantKey(sku string, attrs ...string) string {
	if sku = strings.ToLower(strings.TrimSpace(sku)); sku != "" {
		return "sku:" + sku
	}
	parts := make([]string, 0, len(attrs))
	empty := true
	for _, a := range attrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			empty = false
		}
		parts = append(parts, a)
	}
	if empty {
		return "default"
	}
	return "attr:" + strings.Join(parts, "|")
}

// dedupeVariantKeys suffixes repeated keys in order of appearance so the
// result is stable across reprocessing.
func dedupeVariantKeys(variants []entity.Variant) {
	seen := make(map[string]int, len(variants))
	for i := range variants {
		k := variants[i].VariantKey
		seen[k]++
		if n := seen[k]; n > 1 {
			variants[i].VariantKey = k + "#" + strconv.Itoa(n)
		}
	}
}

func distinctOfferSKUs(offers []platform.JSONLDOffer) bool {
	seen := make(map[string]bool, len(offers))
	for _, o := range offers {
		if o.SKU == "" || seen[o.SKU.String()] {
			return false
		}
		seen[o.SKU.String()] = true
	}
	return true
}

func plainText(s string) string {
	if s == "" || !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func urlExternalID(rawURL string) string {
	norm, err := utils.NormalizeURL(rawURL)
	if err != nil {
		norm = rawURL
	}
	return "url:" + utils.HashURL(norm)
}
