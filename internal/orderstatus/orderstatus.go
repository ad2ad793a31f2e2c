// Package orderstatus translates between the ERP's status/delivery
// vocabularies and the local ones. The ERP is authoritative on ordering, so
// translation never rejects a transition; unknown values fall back to a safe
// default.
package orderstatus

import "fimbiz-sync/internal/database/models"

// Remote vocabulary as it appears on the wire.
const (
	RemoteInWork          = "InWork"
	RemoteAwaitingPayment = "AwaitingPayment"
	RemoteInvoiceApproved = "InvoiceApproved"
	RemoteInProduction    = "InProduction"
	RemoteAssembly        = "Assembly"
	RemoteHandedToCarrier = "HandedToCarrier"
	RemoteCarrierDelivery = "CarrierDelivery"
	RemoteDelivery        = "Delivery"
	RemoteReadyForPickup  = "ReadyForPickup"
	RemoteCompleted       = "Completed"
	RemoteCanceled        = "Canceled"
)

const (
	RemoteDeliverySelfPickup       = "SelfPickup"
	RemoteDeliveryCourier          = "CourierDelivery"
	RemoteDeliveryTransportCompany = "TransportCompany"
)

func FromRemote(remote string) models.OrderStatus {
	switch remote {
	case RemoteInWork:
		return models.StatusProcessing
	case RemoteAwaitingPayment:
		return models.StatusAwaitingPayment
	case RemoteInvoiceApproved:
		return models.StatusInvoiceConfirmed
	case RemoteInProduction:
		return models.StatusManufacturing
	case RemoteAssembly:
		return models.StatusAssembling
	case RemoteHandedToCarrier:
		return models.StatusTransferredToCarrier
	case RemoteCarrierDelivery:
		return models.StatusDeliveringByCarrier
	case RemoteDelivery:
		return models.StatusDelivering
	case RemoteReadyForPickup:
		return models.StatusAwaitingPickup
	case RemoteCompleted:
		return models.StatusReceived
	case RemoteCanceled:
		return models.StatusCancelled
	default:
		return models.StatusProcessing
	}
}

func ToRemote(status models.OrderStatus) string {
	switch status {
	case models.StatusProcessing:
		return RemoteInWork
	case models.StatusAwaitingPayment:
		return RemoteAwaitingPayment
	case models.StatusInvoiceConfirmed:
		return RemoteInvoiceApproved
	case models.StatusManufacturing:
		return RemoteInProduction
	case models.StatusAssembling:
		return RemoteAssembly
	case models.StatusTransferredToCarrier:
		return RemoteHandedToCarrier
	case models.StatusDeliveringByCarrier:
		return RemoteCarrierDelivery
	case models.StatusDelivering:
		return RemoteDelivery
	case models.StatusAwaitingPickup:
		return RemoteReadyForPickup
	case models.StatusReceived:
		return RemoteCompleted
	case models.StatusCancelled:
		return RemoteCanceled
	default:
		return RemoteInWork
	}
}

func DeliveryFromRemote(remote string) models.DeliveryType {
	switch remote {
	case RemoteDeliveryCourier:
		return models.DeliveryCourier
	case RemoteDeliveryTransportCompany:
		return models.DeliveryCarrier
	case RemoteDeliverySelfPickup:
		return models.DeliveryPickup
	default:
		return models.DeliveryPickup
	}
}

func DeliveryToRemote(delivery models.DeliveryType) string {
	switch delivery {
	case models.DeliveryCourier:
		return RemoteDeliveryCourier
	case models.DeliveryCarrier:
		return RemoteDeliveryTransportCompany
	default:
		return RemoteDeliverySelfPickup
	}
}

// CanCancelLocally gates user-initiated cancellation. The restriction is a
// shop business rule; the ERP itself may cancel from any non-terminal state.
func CanCancelLocally(status models.OrderStatus) bool {
	return status == models.StatusProcessing || status == models.StatusAwaitingPayment
}

func IsTerminal(status models.OrderStatus) bool {
	return status == models.StatusReceived || status == models.StatusCancelled
}
