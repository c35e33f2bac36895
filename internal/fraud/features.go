package fraud

import (
	"math"
	"time"

	"github.com/sriscode/MobileArc/internal/banking"
)

// FeatureCount is the fixed dimensionality of the anomaly feature vector.
const FeatureCount = 8

// Merchant-category risk scores. The high-risk set covers gambling, ATM /
// cash advance, and money transfer codes.
const (
	highMCCRisk = 0.85
	lowMCCRisk  = 0.20
)

var highRiskMCCs = map[string]bool{
	"7995": true, // gambling
	"6010": true, // cash advance
	"6011": true, // ATM
	"4829": true, // money transfer
}

// earthRadiusKM is the mean Earth radius used for great-circle distance.
const earthRadiusKM = 6371.0

// Features builds the 8-dimensional anomaly feature vector for a
// transaction against a history snapshot:
//
//	[0] amount sigmoid(z-score) against rolling mean/stddev (0.5 neutral)
//	[1] sin(hour-of-day)  [2] cos(hour-of-day)   (cyclical encoding)
//	[3] merchant-category risk score
//	[4] great-circle km from last known location (0 without prior)
//	[5] transaction count in the last 1 hour
//	[6] transaction count in the last 24 hours
//	[7] card-not-present flag
//
// Scoring against an empty or stale history degrades to the neutral
// values rather than failing.
func Features(txn banking.Transaction, snap *Snapshot) [FeatureCount]float64 {
	var f [FeatureCount]float64

	f[0] = normalizedAmount(txn.Amount, snap)

	hourAngle := 2 * math.Pi * float64(txn.Timestamp.Hour()) / 24
	f[1] = math.Sin(hourAngle)
	f[2] = math.Cos(hourAngle)

	f[3] = mccRisk(txn.MCC)
	f[4] = distanceFromLast(txn, snap)
	f[5] = float64(snap.VelocityCount(txn.Timestamp, time.Hour))
	f[6] = float64(snap.VelocityCount(txn.Timestamp, 24*time.Hour))

	if txn.CardNotPresent {
		f[7] = 1
	}
	return f
}

// normalizedAmount maps the amount's z-score through a sigmoid into (0,1).
// 0.5 when the history is empty or has zero spread.
func normalizedAmount(amount float64, snap *Snapshot) float64 {
	mean, stddev := snap.AmountStats()
	if len(snap.Transactions) == 0 || stddev == 0 {
		return 0.5
	}
	z := (amount - mean) / stddev
	return 1 / (1 + math.Exp(-z))
}

func mccRisk(mcc string) float64 {
	if highRiskMCCs[mcc] {
		return highMCCRisk
	}
	return lowMCCRisk
}

// distanceFromLast returns the haversine distance in km between the
// transaction and the last known location, or 0 when either is missing.
func distanceFromLast(txn banking.Transaction, snap *Snapshot) float64 {
	if txn.Location == nil || snap.LastLocation == nil {
		return 0
	}
	return haversineKM(*snap.LastLocation, *txn.Location)
}

func haversineKM(a, b banking.Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
