package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method and event names.
const (
	methodCalculateFare     = "calculateFare"
	methodRequestRide       = "requestRide"
	methodCompleteRide      = "completeRide"
	methodRateRide          = "rateRide"
	methodGetPassengerRides = "getPassengerRides"
	methodGetRideDetails    = "getRideDetails"

	eventRideRequested = "RideRequested"
)

// AutoRideFareABI is the ABI of the AutoRideFare contract.
const AutoRideFareABI = `[
	{
		"inputs": [{"name": "distance", "type": "uint256"}],
		"name": "calculateFare",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "pickupLocation", "type": "string"},
			{"name": "dropLocation", "type": "string"},
			{"name": "distance", "type": "uint256"}
		],
		"name": "requestRide",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"name": "rideId", "type": "uint256"}],
		"name": "completeRide",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "rideId", "type": "uint256"},
			{"name": "rating", "type": "uint8"}
		],
		"name": "rateRide",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "passenger", "type": "address"}],
		"name": "getPassengerRides",
		"outputs": [{"name": "", "type": "uint256[]"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "rideId", "type": "uint256"}],
		"name": "getRideDetails",
		"outputs": [
			{"name": "passenger", "type": "address"},
			{"name": "driver", "type": "address"},
			{"name": "pickupLocation", "type": "string"},
			{"name": "dropLocation", "type": "string"},
			{"name": "distance", "type": "uint256"},
			{"name": "fare", "type": "uint256"},
			{"name": "status", "type": "uint8"},
			{"name": "timestamp", "type": "uint256"},
			{"name": "rating", "type": "uint8"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "rideId", "type": "uint256"},
			{"indexed": true, "name": "passenger", "type": "address"},
			{"indexed": false, "name": "pickupLocation", "type": "string"},
			{"indexed": false, "name": "dropLocation", "type": "string"},
			{"indexed": false, "name": "distance", "type": "uint256"},
			{"indexed": false, "name": "fare", "type": "uint256"}
		],
		"name": "RideRequested",
		"type": "event"
	}
]`

// contractABI is the parsed form of AutoRideFareABI.
var contractABI = mustParseABI(AutoRideFareABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: invalid contract ABI: " + err.Error())
	}
	return parsed
}
