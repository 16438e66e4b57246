package prestashop

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/erp/importer/internal/domain/integration"
)

// ListIDs returns one page of ids of resource, ascending
func (c *Client) ListIDs(ctx context.Context, resource integration.Resource, opts integration.ListOptions) ([]int64, error) {
	q := url.Values{}
	q.Set("display", "[id]")
	q.Set("sort", "[id_ASC]")
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d,%d", max(opts.Offset, 0), opts.Limit))
	}
	for field, value := range opts.Filters {
		q.Set("filter["+field+"]", "["+value+"]")
	}

	var env listEnvelope[listItem]
	if err := c.getXML(ctx, string(resource), q, c.config.ListTimeout, &env); err != nil {
		return nil, fmt.Errorf("list %s: %w", resource, err)
	}

	ids := make([]int64, 0, len(env.Collection.Items))
	for _, item := range env.Collection.Items {
		id, ok := item.id()
		if !ok {
			return nil, fmt.Errorf("list %s: %w", resource, malformed("listing entry without numeric id"))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Category fetches one category
func (c *Client) Category(ctx context.Context, id int64) (*integration.SourceCategory, error) {
	var env detailEnvelope[xmlCategory]
	if err := c.getXML(ctx, detailPath(integration.ResourceCategories, id), nil, c.config.DetailTimeout, &env); err != nil {
		return nil, fmt.Errorf("category %d: %w", id, err)
	}
	return env.Item.toSource(c.config.LanguageID)
}

// Product fetches one product with its associations
func (c *Client) Product(ctx context.Context, id int64) (*integration.SourceProduct, error) {
	var env detailEnvelope[xmlProduct]
	if err := c.getXML(ctx, detailPath(integration.ResourceProducts, id), nil, c.config.DetailTimeout, &env); err != nil {
		return nil, fmt.Errorf("product %d: %w", id, err)
	}
	return env.Item.toSource(c.config.LanguageID)
}

// StockAvailable fetches one stock row
func (c *Client) StockAvailable(ctx context.Context, id int64) (*integration.SourceStock, error) {
	var env detailEnvelope[xmlStock]
	if err := c.getXML(ctx, detailPath(integration.ResourceStockAvailables, id), nil, c.config.DetailTimeout, &env); err != nil {
		return nil, fmt.Errorf("stock_available %d: %w", id, err)
	}
	return env.Item.toSource()
}

// StockForProduct fetches every stock row of a product, combinations included
func (c *Client) StockForProduct(ctx context.Context, productID int64) ([]integration.SourceStock, error) {
	q := url.Values{}
	q.Set("display", "full")
	q.Set("filter[id_product]", "["+strconv.FormatInt(productID, 10)+"]")

	var env listEnvelope[xmlStock]
	if err := c.getXML(ctx, string(integration.ResourceStockAvailables), q, c.config.DetailTimeout, &env); err != nil {
		return nil, fmt.Errorf("stock of product %d: %w", productID, err)
	}

	rows := make([]integration.SourceStock, 0, len(env.Collection.Items))
	for _, x := range env.Collection.Items {
		row, err := x.toSource()
		if err != nil {
			return nil, err
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

// Customer fetches one customer
func (c *Client) Customer(ctx context.Context, id int64) (*integration.SourceCustomer, error) {
	var env detailEnvelope[xmlCustomer]
	if err := c.getXML(ctx, detailPath(integration.ResourceCustomers, id), nil, c.config.DetailTimeout, &env); err != nil {
		return nil, fmt.Errorf("customer %d: %w", id, err)
	}
	return env.Item.toSource()
}

// AddressesForCustomer fetches the live addresses of a customer
func (c *Client) AddressesForCustomer(ctx context.Context, customerID int64) ([]integration.SourceAddress, error) {
	q := url.Values{}
	q.Set("display", "full")
	q.Set("filter[id_customer]", "["+strconv.FormatInt(customerID, 10)+"]")

	var env listEnvelope[xmlAddress]
	if err := c.getXML(ctx, string(integration.ResourceAddresses), q, c.config.DetailTimeout, &env); err != nil {
		return nil, fmt.Errorf("addresses of customer %d: %w", customerID, err)
	}

	addresses := make([]integration.SourceAddress, 0, len(env.Collection.Items))
	for _, x := range env.Collection.Items {
		if parseBool(x.Deleted) {
			continue
		}
		addr, err := x.toSource()
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, *addr)
	}
	return addresses, nil
}

// CountryISO returns the upper-case ISO code of a country
func (c *Client) CountryISO(ctx context.Context, countryID int64) (string, error) {
	var env detailEnvelope[xmlCountry]
	if err := c.getXML(ctx, detailPath(integration.ResourceCountries, countryID), nil, c.config.DetailTimeout, &env); err != nil {
		return "", fmt.Errorf("country %d: %w", countryID, err)
	}
	iso := strings.ToUpper(strings.TrimSpace(env.Item.ISOCode))
	if iso == "" {
		return "", malformed("country %d has no iso_code", countryID)
	}
	return iso, nil
}

// StateName returns the name of a country state
func (c *Client) StateName(ctx context.Context, stateID int64) (string, error) {
	var env detailEnvelope[xmlState]
	if err := c.getXML(ctx, detailPath(integration.ResourceStates, stateID), nil, c.config.DetailTimeout, &env); err != nil {
		return "", fmt.Errorf("state %d: %w", stateID, err)
	}
	name := strings.TrimSpace(env.Item.Name)
	if name == "" {
		return "", malformed("state %d has no name", stateID)
	}
	return name, nil
}

// Image downloads one product image through the webservice
func (c *Client) Image(ctx context.Context, productID, imageID int64) (*integration.SourceImage, error) {
	path := fmt.Sprintf("images/products/%d/%d", productID, imageID)
	resp, err := c.fetch(ctx, path, nil, c.config.DetailTimeout)
	if err != nil {
		return nil, fmt.Errorf("image %d of product %d: %w", imageID, productID, err)
	}
	contentType := strings.ToLower(resp.contentType)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("image %d of product %d: %w",
			imageID, productID, malformed("unexpected content type %q", resp.contentType))
	}
	return &integration.SourceImage{
		ProductID:   productID,
		ImageID:     imageID,
		ContentType: contentType,
		Data:        resp.body,
	}, nil
}

func detailPath(resource integration.Resource, id int64) string {
	return string(resource) + "/" + strconv.FormatInt(id, 10)
}
