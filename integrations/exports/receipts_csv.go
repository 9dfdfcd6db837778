package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"vitrine/native/market"
)

var receiptHeader = []string{
	"sequence", "product_id", "buyer", "seller", "promoter",
	"price_paid", "platform_fee", "seller_amount", "promoter_amount", "change", "timestamp",
}

// ReceiptsCSV builds a CSV export for the supplied receipts and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func ReceiptsCSV(receipts []*market.Receipt) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(receiptHeader); err != nil {
		return nil, "", err
	}
	for _, r := range receipts {
		if r == nil {
			continue
		}
		record := []string{
			fmt.Sprintf("%d", r.Sequence),
			fmt.Sprintf("%d", r.ProductID),
			r.Buyer.String(),
			r.Seller.String(),
			promoterString(r),
			amountString(r.PricePaid),
			amountString(r.PlatformFee),
			amountString(r.SellerAmount),
			amountString(r.PromoterAmount),
			amountString(r.Change),
			timestampString(r.Timestamp),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func promoterString(r *market.Receipt) string {
	if r.Promoter == nil {
		return ""
	}
	return r.Promoter.String()
}

func timestampString(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
