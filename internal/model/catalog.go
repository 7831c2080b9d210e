package model

import "time"

type Bike struct {
	ID          int64   `json:"id" yaml:"-"`
	Name        string  `json:"name" yaml:"name"`
	Price       float64 `json:"price" yaml:"price"`
	Image       string  `json:"image" yaml:"image"`
	Brand       string  `json:"brand" yaml:"brand"`
	Type        string  `json:"type" yaml:"type"`
	Year        int     `json:"year" yaml:"year"`
	Capacity    string  `json:"capacity" yaml:"capacity"`
	DriveMode   string  `json:"driveMode" yaml:"driveMode"`
	Technology  string  `json:"technology" yaml:"technology"`
	Description string  `json:"description" yaml:"description"`
}

type CartItem struct {
	Bike     Bike      `json:"bike"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"addedAt"`
}

type Cart struct {
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

const (
	DefaultPaymentMethod  = "Bank Transfer"
	DefaultShippingMethod = "Standard"
	DefaultOrderStatus    = "ordered"
)

type OrderItem struct {
	BikeID    int64   `json:"bikeId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type Order struct {
	ID             int64       `json:"id"`
	UserID         string      `json:"userId"`
	Items          []OrderItem `json:"items"`
	OrderDate      time.Time   `json:"orderDate"`
	ShipDate       time.Time   `json:"shipDate"`
	PaymentMethod  string      `json:"paymentMethod"`
	ShippingMethod string      `json:"shippingMethod"`
	Total          float64     `json:"total"`
	Status         string      `json:"status"`
	Address        string      `json:"address"`
	Phone          string      `json:"phone"`
}
