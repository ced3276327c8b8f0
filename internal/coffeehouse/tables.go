// Package coffeehouse defines the sample schema bootstrapped by sqlbootstrap:
// suppliers, the coffees they sell, RSS feeds and product information
// linking coffees to feeds.
package coffeehouse

import (
	"fmt"
	"strings"

	"github.com/vitebski/sqlbootstrap/internal/connector"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// Table names
const (
	Suppliers          = "SUPPLIERS"
	Coffees            = "COFFEES"
	RSSFeeds           = "RSS_FEEDS"
	ProductInformation = "PRODUCT_INFORMATION"
)

// Supplier is one row of SUPPLIERS
type Supplier struct {
	ID     int
	Name   string
	Street string
	City   string
	State  string
	Zip    string
}

// Coffee is one row of COFFEES
type Coffee struct {
	Name       string
	SupplierID int
	Price      string
	Sales      int
	Total      int
}

// DefaultSuppliers are inserted into SUPPLIERS on bootstrap
var DefaultSuppliers = []Supplier{
	{49, "Superior Coffee", "1 Party Place", "Mendocino", "CA", "95460"},
	{101, "Acme, Inc.", "99 Market Street", "Groundsville", "CA", "95199"},
	{150, "The High Ground", "100 Coffee Lane", "Meadows", "CA", "93966"},
}

// DefaultCoffees are inserted into COFFEES on bootstrap
var DefaultCoffees = []Coffee{
	{"Colombian", 101, "7.99", 0, 0},
	{"French_Roast", 49, "8.99", 0, 0},
	{"Espresso", 150, "9.99", 0, 0},
	{"Colombian_Decaf", 101, "8.99", 0, 0},
	{"French_Roast_Decaf", 49, "9.99", 0, 0},
}

// longText is the column type used for feed documents
func longText(d connector.Dialect) string {
	switch d {
	case connector.MySQL:
		return "LONGTEXT"
	case connector.SQLServer:
		return "NVARCHAR(MAX)"
	case connector.Oracle:
		return "CLOB"
	default:
		return "TEXT"
	}
}

// Tables returns the coffeehouse table graph with statements for profile.
// RSS_FEEDS and PRODUCT_INFORMATION start empty.
func Tables(profile connector.Profile) []models.TableSpec {
	drop := func(table string) string {
		if profile.DropIfExists {
			return "DROP TABLE IF EXISTS " + table
		}
		return "DROP TABLE " + table
	}

	suppliers := make([]string, 0, len(DefaultSuppliers))
	for _, s := range DefaultSuppliers {
		suppliers = append(suppliers, fmt.Sprintf("INSERT INTO SUPPLIERS VALUES (%d, %s, %s, %s, %s, %s)",
			s.ID, quote(s.Name), quote(s.Street), quote(s.City), quote(s.State), quote(s.Zip)))
	}

	coffees := make([]string, 0, len(DefaultCoffees))
	for _, c := range DefaultCoffees {
		coffees = append(coffees, fmt.Sprintf("INSERT INTO COFFEES VALUES (%s, %d, %s, %d, %d)",
			quote(c.Name), c.SupplierID, c.Price, c.Sales, c.Total))
	}

	return []models.TableSpec{
		{
			Name: Suppliers,
			CreateStatement: "CREATE TABLE SUPPLIERS (" +
				"SUP_ID INTEGER NOT NULL, " +
				"SUP_NAME VARCHAR(40) NOT NULL, " +
				"STREET VARCHAR(40) NOT NULL, " +
				"CITY VARCHAR(20) NOT NULL, " +
				"STATE CHAR(2) NOT NULL, " +
				"ZIP CHAR(5), " +
				"PRIMARY KEY (SUP_ID))",
			PopulateStatements: suppliers,
			DropStatement:      drop(Suppliers),
		},
		{
			Name:      Coffees,
			DependsOn: []string{Suppliers},
			CreateStatement: "CREATE TABLE COFFEES (" +
				"COF_NAME VARCHAR(32) NOT NULL, " +
				"SUP_ID INTEGER NOT NULL, " +
				"PRICE NUMERIC(10,2) NOT NULL, " +
				"SALES INTEGER NOT NULL, " +
				"TOTAL INTEGER NOT NULL, " +
				"PRIMARY KEY (COF_NAME), " +
				"FOREIGN KEY (SUP_ID) REFERENCES SUPPLIERS (SUP_ID))",
			PopulateStatements: coffees,
			DropStatement:      drop(Coffees),
		},
		{
			Name: RSSFeeds,
			CreateStatement: "CREATE TABLE RSS_FEEDS (" +
				"RSS_NAME VARCHAR(32) NOT NULL, " +
				"RSS_FEED_XML " + longText(profile.Dialect) + " NOT NULL, " +
				"PRIMARY KEY (RSS_NAME))",
			DropStatement: drop(RSSFeeds),
		},
		{
			Name:      ProductInformation,
			DependsOn: []string{Coffees, RSSFeeds},
			CreateStatement: "CREATE TABLE PRODUCT_INFORMATION (" +
				"PRODUCT_NAME VARCHAR(32) NOT NULL, " +
				"RSS_NAME VARCHAR(32), " +
				"DESCRIPTION VARCHAR(255), " +
				"PRIMARY KEY (PRODUCT_NAME), " +
				"FOREIGN KEY (PRODUCT_NAME) REFERENCES COFFEES (COF_NAME), " +
				"FOREIGN KEY (RSS_NAME) REFERENCES RSS_FEEDS (RSS_NAME))",
			DropStatement: drop(ProductInformation),
		},
	}
}

// quote renders s as a SQL string literal
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
