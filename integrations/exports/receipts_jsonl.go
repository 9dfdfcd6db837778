package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"vitrine/native/market"
)

// ReceiptsJSONL builds a JSON Lines export for the supplied receipts and
// returns the serialised payload alongside a checksum.
func ReceiptsJSONL(receipts []*market.Receipt) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, r := range receipts {
		if r == nil {
			continue
		}
		payload := map[string]interface{}{
			"sequence":        r.Sequence,
			"product_id":      r.ProductID,
			"buyer":           r.Buyer.String(),
			"seller":          r.Seller.String(),
			"promoter":        promoterString(r),
			"price_paid":      amountString(r.PricePaid),
			"platform_fee":    amountString(r.PlatformFee),
			"seller_amount":   amountString(r.SellerAmount),
			"promoter_amount": amountString(r.PromoterAmount),
			"change":          amountString(r.Change),
			"timestamp":       timestampString(r.Timestamp),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
