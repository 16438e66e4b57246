package prestashop

import (
	"strconv"
	"strings"

	"github.com/erp/importer/internal/domain/integration"
)

// Webservice payloads. Every response is wrapped in <prestashop>; the inner element
// name varies per resource, so envelopes match it with ",any".

type detailEnvelope[T any] struct {
	Item T `xml:",any"`
}

type listEnvelope[T any] struct {
	Collection struct {
		Items []T `xml:",any"`
	} `xml:",any"`
}

// listItem covers both <category id="3" xlink:href=".."/> and display=[id] output
type listItem struct {
	IDAttr string `xml:"id,attr"`
	ID     string `xml:"id"`
}

func (i listItem) id() (int64, bool) {
	raw := strings.TrimSpace(i.ID)
	if raw == "" {
		raw = strings.TrimSpace(i.IDAttr)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}

type langValue struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

// multiLang is a field that may hold one <language id=".."> child per shop language
type multiLang struct {
	Text      string      `xml:",chardata"`
	Languages []langValue `xml:"language"`
}

// value picks the configured language, then the first non-empty language, then plain text
func (m multiLang) value(languageID string) string {
	for _, l := range m.Languages {
		if l.ID == languageID {
			if v := strings.TrimSpace(l.Value); v != "" {
				return v
			}
		}
	}
	for _, l := range m.Languages {
		if v := strings.TrimSpace(l.Value); v != "" {
			return v
		}
	}
	return strings.TrimSpace(m.Text)
}

type xmlCategory struct {
	ID       string    `xml:"id"`
	IDParent string    `xml:"id_parent"`
	Active   string    `xml:"active"`
	Name     multiLang `xml:"name"`
}

type xmlAssocID struct {
	ID string `xml:"id"`
}

type xmlProduct struct {
	ID                string    `xml:"id"`
	IDCategoryDefault string    `xml:"id_category_default"`
	Reference         string    `xml:"reference"`
	EAN13             string    `xml:"ean13"`
	Price             string    `xml:"price"`
	WholesalePrice    string    `xml:"wholesale_price"`
	Weight            string    `xml:"weight"`
	Type              string    `xml:"type"`
	IsVirtual         string    `xml:"is_virtual"`
	Active            string    `xml:"active"`
	Quantity          *string   `xml:"quantity"`
	Name              multiLang `xml:"name"`
	Description       multiLang `xml:"description"`
	DescriptionShort  multiLang `xml:"description_short"`
	Associations      struct {
		Categories []xmlAssocID `xml:"categories>category"`
		Images     []xmlAssocID `xml:"images>image"`
	} `xml:"associations"`
}

type xmlStock struct {
	ID                 string `xml:"id"`
	IDProduct          string `xml:"id_product"`
	IDProductAttribute string `xml:"id_product_attribute"`
	Quantity           string `xml:"quantity"`
}

type xmlCustomer struct {
	ID        string `xml:"id"`
	Email     string `xml:"email"`
	FirstName string `xml:"firstname"`
	LastName  string `xml:"lastname"`
	Active    string `xml:"active"`
}

type xmlAddress struct {
	ID          string `xml:"id"`
	IDCustomer  string `xml:"id_customer"`
	IDCountry   string `xml:"id_country"`
	IDState     string `xml:"id_state"`
	Alias       string `xml:"alias"`
	Company     string `xml:"company"`
	FirstName   string `xml:"firstname"`
	LastName    string `xml:"lastname"`
	Address1    string `xml:"address1"`
	Address2    string `xml:"address2"`
	Postcode    string `xml:"postcode"`
	City        string `xml:"city"`
	Phone       string `xml:"phone"`
	PhoneMobile string `xml:"phone_mobile"`
	Deleted     string `xml:"deleted"`
}

type xmlState struct {
	ID      string `xml:"id"`
	ISOCode string `xml:"iso_code"`
	Name    string `xml:"name"`
}

type xmlCountry struct {
	ID      string    `xml:"id"`
	ISOCode string    `xml:"iso_code"`
	Name    multiLang `xml:"name"`
}

// parseID parses a numeric id; blank and "0" yield 0
func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseBool(raw string) bool {
	return strings.TrimSpace(raw) == "1"
}

func optionalID(raw string) (*int64, error) {
	id, err := parseID(raw)
	if err != nil || id == 0 {
		return nil, err
	}
	return &id, nil
}

func (x xmlCategory) toSource(languageID string) (*integration.SourceCategory, error) {
	id, err := parseID(x.ID)
	if err != nil || id == 0 {
		return nil, malformed("category id %q", x.ID)
	}
	parent, err := optionalID(x.IDParent)
	if err != nil {
		return nil, malformed("category %d id_parent %q", id, x.IDParent)
	}
	return &integration.SourceCategory{
		ID:       id,
		Name:     x.Name.value(languageID),
		ParentID: parent,
		Active:   parseBool(x.Active),
	}, nil
}

func (x xmlProduct) toSource(languageID string) (*integration.SourceProduct, error) {
	id, err := parseID(x.ID)
	if err != nil || id == 0 {
		return nil, malformed("product id %q", x.ID)
	}
	defaultCategory, err := optionalID(x.IDCategoryDefault)
	if err != nil {
		return nil, malformed("product %d id_category_default %q", id, x.IDCategoryDefault)
	}

	productType := strings.TrimSpace(x.Type)
	if parseBool(x.IsVirtual) {
		productType = "virtual"
	}

	p := &integration.SourceProduct{
		ID:                id,
		Name:              x.Name.value(languageID),
		Reference:         strings.TrimSpace(x.Reference),
		EAN13:             strings.TrimSpace(x.EAN13),
		Description:       x.Description.value(languageID),
		ShortDescription:  x.DescriptionShort.value(languageID),
		Price:             strings.TrimSpace(x.Price),
		WholesalePrice:    strings.TrimSpace(x.WholesalePrice),
		Weight:            strings.TrimSpace(x.Weight),
		Type:              productType,
		Active:            parseBool(x.Active),
		DefaultCategoryID: defaultCategory,
	}
	if x.Quantity != nil {
		q := strings.TrimSpace(*x.Quantity)
		p.Quantity = &q
	}
	for _, c := range x.Associations.Categories {
		if cid, err := parseID(c.ID); err == nil && cid > 0 {
			p.CategoryIDs = append(p.CategoryIDs, cid)
		}
	}
	for _, img := range x.Associations.Images {
		if iid, err := parseID(img.ID); err == nil && iid > 0 {
			p.ImageIDs = append(p.ImageIDs, iid)
		}
	}
	return p, nil
}

func (x xmlStock) toSource() (*integration.SourceStock, error) {
	id, err := parseID(x.ID)
	if err != nil || id == 0 {
		return nil, malformed("stock_available id %q", x.ID)
	}
	productID, err := parseID(x.IDProduct)
	if err != nil {
		return nil, malformed("stock_available %d id_product %q", id, x.IDProduct)
	}
	attributeID, err := parseID(x.IDProductAttribute)
	if err != nil {
		return nil, malformed("stock_available %d id_product_attribute %q", id, x.IDProductAttribute)
	}
	return &integration.SourceStock{
		ID:                 id,
		ProductID:          productID,
		ProductAttributeID: attributeID,
		Quantity:           strings.TrimSpace(x.Quantity),
	}, nil
}

func (x xmlCustomer) toSource() (*integration.SourceCustomer, error) {
	id, err := parseID(x.ID)
	if err != nil || id == 0 {
		return nil, malformed("customer id %q", x.ID)
	}
	return &integration.SourceCustomer{
		ID:        id,
		Email:     strings.TrimSpace(x.Email),
		FirstName: strings.TrimSpace(x.FirstName),
		LastName:  strings.TrimSpace(x.LastName),
		Active:    parseBool(x.Active),
	}, nil
}

func (x xmlAddress) toSource() (*integration.SourceAddress, error) {
	id, err := parseID(x.ID)
	if err != nil || id == 0 {
		return nil, malformed("address id %q", x.ID)
	}
	customerID, _ := parseID(x.IDCustomer)
	countryID, _ := parseID(x.IDCountry)
	stateID, _ := parseID(x.IDState)
	return &integration.SourceAddress{
		ID:          id,
		CustomerID:  customerID,
		Alias:       strings.TrimSpace(x.Alias),
		Company:     strings.TrimSpace(x.Company),
		FirstName:   strings.TrimSpace(x.FirstName),
		LastName:    strings.TrimSpace(x.LastName),
		Address1:    strings.TrimSpace(x.Address1),
		Address2:    strings.TrimSpace(x.Address2),
		Postcode:    strings.TrimSpace(x.Postcode),
		City:        strings.TrimSpace(x.City),
		Phone:       strings.TrimSpace(x.Phone),
		PhoneMobile: strings.TrimSpace(x.PhoneMobile),
		CountryID:   countryID,
		StateID:     stateID,
	}, nil
}
