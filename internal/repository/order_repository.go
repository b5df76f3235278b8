package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopfront/order-reconciler/internal/domain"
	pkgconfig "github.com/shopfront/order-reconciler/pkg/config"
)

var (
	// ErrOrderNotFound is returned when no order matches the given key.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyProcessed is returned by CreateOrder when the session guard
	// item already exists: a concurrent or earlier delivery of the same
	// payment event won the race. Callers treat it as success.
	ErrAlreadyProcessed = errors.New("session already processed")

	// ErrStatusConflict is returned by UpdateStatus when the order's status
	// changed under the caller. Callers re-read and re-apply monotonicity.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// StockShortfallError reports which inventory conditions failed inside the
// creation transaction. The materializer clamps those quantities and retries;
// order creation is never rejected for stock.
type StockShortfallError struct {
	ProductIDs []string
}

func (e *StockShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for products %v", e.ProductIDs)
}

// InventoryDecrement is one stock subtraction applied atomically with order
// creation.
type InventoryDecrement struct {
	ProductID string
	Quantity  int
}

type OrderRepository struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDBClient(cfg *pkgconfig.Config) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}

	if cfg.DynamoDBEndpoint != "" {
		return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}), nil
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

func NewOrderRepository(client *dynamodb.Client, tableName string) *OrderRepository {
	return &OrderRepository{
		client:    client,
		tableName: tableName,
	}
}

func orderPK(orderID string) string { return "ORDER#" + orderID }

func sessionPK(sessionID string) string { return "SESSION#" + sessionID }

func productPK(productID string) string { return "PRODUCT#" + productID }

func trackingPK(trackingNum string) string { return "TRACKING#" + trackingNum }

// CreateOrder persists the order, its session guard item and the inventory
// decrements in one TransactWriteItems. The guard item's
// attribute_not_exists condition is the uniqueness constraint that makes
// creation idempotent under duplicate webhook delivery: losing the race comes
// back as ErrAlreadyProcessed, never as a duplicate order.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *domain.Order, decrements []InventoryDecrement) error {
	av, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	av["PK"] = &types.AttributeValueMemberS{Value: orderPK(order.OrderID)}
	av["SK"] = &types.AttributeValueMemberS{Value: "METADATA"}
	if order.UserID != "" {
		av["GSI1PK"] = &types.AttributeValueMemberS{Value: "USER#" + order.UserID}
		av["GSI1SK"] = &types.AttributeValueMemberS{Value: "ORDER#" + order.CreatedAt.Format(time.RFC3339)}
	}

	items := []types.TransactWriteItem{
		{
			// Guard item first so its cancellation reason index is fixed.
			Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item: map[string]types.AttributeValue{
					"PK":         &types.AttributeValueMemberS{Value: sessionPK(order.ExternalSessionID)},
					"SK":         &types.AttributeValueMemberS{Value: "GUARD"},
					"order_id":   &types.AttributeValueMemberS{Value: order.OrderID},
					"created_at": &types.AttributeValueMemberS{Value: order.CreatedAt.Format(time.RFC3339)},
				},
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		},
		{
			Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item:      av,
			},
		},
	}

	for _, d := range decrements {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: productPK(d.ProductID)},
					"SK": &types.AttributeValueMemberS{Value: "STOCK"},
				},
				UpdateExpression:    aws.String("SET stock_quantity = stock_quantity - :q"),
				ConditionExpression: aws.String("stock_quantity >= :q"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":q": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", d.Quantity)},
				},
			},
		})
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		// Reason order matches TransactItems order: 0 is the guard, 1 the
		// order item, 2+ the inventory decrements.
		if len(canceled.CancellationReasons) > 0 &&
			aws.ToString(canceled.CancellationReasons[0].Code) == "ConditionalCheckFailed" {
			return ErrAlreadyProcessed
		}
		shortfall := &StockShortfallError{}
		for i, reason := range canceled.CancellationReasons {
			if i >= 2 && aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				shortfall.ProductIDs = append(shortfall.ProductIDs, decrements[i-2].ProductID)
			}
		}
		if len(shortfall.ProductIDs) > 0 {
			return shortfall
		}
	}
	return fmt.Errorf("failed to create order transaction: %w", err)
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: orderPK(orderID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, ErrOrderNotFound
	}

	var order domain.Order
	if err := attributevalue.UnmarshalMap(out.Item, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderBySession resolves an order through its idempotency guard item.
func (r *OrderRepository) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	orderID, err := r.resolvePointer(ctx, sessionPK(sessionID), "GUARD")
	if err != nil {
		return nil, err
	}
	return r.GetOrder(ctx, orderID)
}

// GetOrderByTracking resolves an order through the tracking pointer item
// written when shipping was arranged.
func (r *OrderRepository) GetOrderByTracking(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	orderID, err := r.resolvePointer(ctx, trackingPK(trackingNumber), "POINTER")
	if err != nil {
		return nil, err
	}
	return r.GetOrder(ctx, orderID)
}

func (r *OrderRepository) resolvePointer(ctx context.Context, pk, sk string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if len(out.Item) == 0 {
		return "", ErrOrderNotFound
	}

	id, ok := out.Item["order_id"].(*types.AttributeValueMemberS)
	if !ok || id.Value == "" {
		return "", ErrOrderNotFound
	}
	return id.Value, nil
}

func (r *OrderRepository) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "USER#" + userID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(out.Items))
	for _, item := range out.Items {
		var order domain.Order
		if err := attributevalue.UnmarshalMap(item, &order); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// UpdateStatus applies a status transition with an optimistic condition on
// the current status. ErrStatusConflict means the order moved underneath the
// caller, who re-reads and re-applies the monotonicity check.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, updatedAt time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: orderPK(orderID)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
		UpdateExpression:    aws.String("SET #st = :to, updated_at = :ts"),
		ConditionExpression: aws.String("#st = :from"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":   &types.AttributeValueMemberS{Value: string(to)},
			":from": &types.AttributeValueMemberS{Value: string(from)},
			":ts":   &types.AttributeValueMemberS{Value: updatedAt.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return ErrStatusConflict
		}
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// SetShipping stores the label data on the order and writes the tracking
// pointer item in one transaction so carrier webhooks can correlate.
func (r *OrderRepository) SetShipping(ctx context.Context, orderID string, label domain.ShippingLabel, updatedAt time.Time) error {
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: aws.String(r.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: orderPK(orderID)},
						"SK": &types.AttributeValueMemberS{Value: "METADATA"},
					},
					UpdateExpression: aws.String(
						"SET tracking_number = :tn, carrier = :ca, tracking_url = :tu, label_url = :lu, updated_at = :ts"),
					ConditionExpression: aws.String("attribute_exists(PK)"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":tn": &types.AttributeValueMemberS{Value: label.TrackingNumber},
						":ca": &types.AttributeValueMemberS{Value: label.Carrier},
						":tu": &types.AttributeValueMemberS{Value: label.TrackingURL},
						":lu": &types.AttributeValueMemberS{Value: label.LabelURL},
						":ts": &types.AttributeValueMemberS{Value: updatedAt.Format(time.RFC3339Nano)},
					},
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item: map[string]types.AttributeValue{
						"PK":       &types.AttributeValueMemberS{Value: trackingPK(label.TrackingNumber)},
						"SK":       &types.AttributeValueMemberS{Value: "POINTER"},
						"order_id": &types.AttributeValueMemberS{Value: orderID},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store shipping data: %w", err)
	}
	return nil
}

// GetInventory returns the stock record for a product; a missing record
// reads as nil without error.
func (r *OrderRepository) GetInventory(ctx context.Context, productID string) (*domain.InventoryRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: productPK(productID)},
			"SK": &types.AttributeValueMemberS{Value: "STOCK"},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var rec domain.InventoryRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutInventory writes a stock record. Used by seeding and operator replay.
func (r *OrderRepository) PutInventory(ctx context.Context, rec domain.InventoryRecord) error {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal inventory record: %w", err)
	}
	av["PK"] = &types.AttributeValueMemberS{Value: productPK(rec.ProductID)}
	av["SK"] = &types.AttributeValueMemberS{Value: "STOCK"}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put inventory record: %w", err)
	}
	return nil
}

// ResolveProduct maps a processor-side price reference to a catalog product
// id. Best-effort: a miss returns empty, never an error the materializer
// must act on.
func (r *OrderRepository) ResolveProduct(ctx context.Context, priceRef string) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "PRICE#" + priceRef},
			"SK": &types.AttributeValueMemberS{Value: "PRODUCT"},
		},
	})
	if err != nil {
		return "", err
	}
	if len(out.Item) == 0 {
		return "", nil
	}
	id, ok := out.Item["product_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", nil
	}
	return id.Value, nil
}
