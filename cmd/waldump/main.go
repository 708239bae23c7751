package main

import (
	"flag"
	"fmt"
	"io"
	"log"

	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: wal)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	flag.Parse()

	iter, err := recorder.OpenIterator(*dir, *prefix)
	if err != nil {
		log.Fatalf("open wal failed: %v", err)
	}
	defer iter.Close()

	var index int
	for {
		record, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read wal failed: %v", err)
		}
		index++
		h := record.Header
		fmt.Printf("%06d seq=%d type=%s source=%d trace=%d ts_event=%d ts_recv=%d len=%d\n",
			index, h.Seq, h.Type, h.Source, h.TraceID, h.TsEvent, h.TsRecv, len(record.Payload))
		if *decode {
			printDecoded(h.Type, record.Payload)
		}
	}
	fmt.Printf("total=%d\n", index)
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventMarketData:
		md, ok := codec.DecodeMarketData(payload)
		if !ok {
			fmt.Println("  decode MarketData failed")
			return
		}
		fmt.Printf("  md instrument=%d kind=%d price=%d size=%d bid=%d/%d ask=%d/%d\n",
			md.InstrumentID, md.Kind, md.Price, md.Size, md.BidPrice, md.BidSize, md.AskPrice, md.AskSize)
	case schema.EventOrderIntent:
		order, ok := codec.DecodeOrderIntent(payload)
		if !ok {
			fmt.Println("  decode OrderIntent failed")
			return
		}
		fmt.Printf("  order id=%d account=%d instrument=%d side=%d type=%d tif=%d price=%d qty=%d expires=%d\n",
			order.OrderID, order.AccountID, order.InstrumentID, order.Side, order.Type, order.TimeInForce,
			order.Price, order.Qty, order.ExpiresAt)
	case schema.EventCancelIntent:
		cancel, ok := codec.DecodeCancelIntent(payload)
		if !ok {
			fmt.Println("  decode CancelIntent failed")
			return
		}
		fmt.Printf("  cancel id=%d instrument=%d\n", cancel.OrderID, cancel.InstrumentID)
	case schema.EventOrderStatus:
		status, ok := codec.DecodeOrderStatus(payload)
		if !ok {
			fmt.Println("  decode OrderStatus failed")
			return
		}
		fmt.Printf("  status id=%d instrument=%d status=%d reason=%d price=%d qty=%d leaves=%d\n",
			status.OrderID, status.InstrumentID, status.Status, status.Reason, status.Price, status.Qty, status.LeavesQty)
	case schema.EventFill:
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			fmt.Println("  decode Fill failed")
			return
		}
		fmt.Printf("  fill id=%d account=%d instrument=%d side=%d liq=%d price=%d qty=%d fee=%d\n",
			fill.OrderID, fill.AccountID, fill.InstrumentID, fill.Side, fill.Liquidity, fill.Price, fill.Qty, fill.Fee)
	case schema.EventRiskDecision:
		decision, ok := codec.DecodeRiskDecision(payload)
		if !ok {
			fmt.Println("  decode RiskDecision failed")
			return
		}
		fmt.Printf("  risk id=%d instrument=%d action=%d reason=%d price=%d qty=%d pos=%d max_pos=%d max_notional=%d\n",
			decision.OrderID, decision.InstrumentID, decision.Action, decision.Reason, decision.ProposedPrice,
			decision.ProposedQty, decision.CurrentPos, decision.MaxPos, decision.MaxNotional)
	case schema.EventPositionChanged:
		pos, ok := codec.DecodePositionChanged(payload)
		if !ok {
			fmt.Println("  decode PositionChanged failed")
			return
		}
		fmt.Printf("  position account=%d instrument=%d net=%d avg=%d\n",
			pos.AccountID, pos.InstrumentID, pos.NetQty, pos.AvgPrice)
	case schema.EventAccountState:
		acc, ok := codec.DecodeAccountState(payload)
		if !ok {
			fmt.Println("  decode AccountState failed")
			return
		}
		fmt.Printf("  account id=%d venue=%d balance=%d margin=%d realized=%d\n",
			acc.AccountID, acc.VenueID, acc.Balance, acc.MarginUsed, acc.RealizedPnL)
	case schema.EventAnomaly:
		anomaly, ok := codec.DecodeAnomaly(payload)
		if !ok {
			fmt.Println("  decode Anomaly failed")
			return
		}
		fmt.Printf("  anomaly kind=%s instrument=%d order=%d seq=%d\n",
			anomaly.Kind, anomaly.InstrumentID, anomaly.OrderID, anomaly.Seq)
	default:
		return
	}
}
