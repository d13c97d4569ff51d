// Package bridge orchestrates the flow between a Selve Home Server gateway
// and an MQTT broker.
//
// The bridge pulls device state two ways: a periodic HTTP poll for the full
// snapshot and the gateway's UDP multicast feed for deltas. Both feed the
// reconciling state store; every applied change is fanned out as a retained
// MQTT state message, a state-history row and an optional InfluxDB point.
// Commands travel the other way: JSON on selve/command/<sid> becomes a
// SendGenericCmd POST to the gateway.
//
//	       poll (HTTP)  ┌───────┐  selve/state/<sid>
//	gateway ──────────► │ store │ ───────────────────► broker
//	        ◄────────── │       │ ◄───────────────────
//	  commands (HTTP)   └───────┘  selve/command/<sid>
//	            ▲ multicast (UDP deltas)
//
// A health heartbeat goes to selve/health and the gateway's self-description
// to selve/server, both retained.
//
// # Usage
//
//	b, err := bridge.New(bridge.Options{
//	    Gateway: gatewayClient,
//	    Store:   state.NewStore(),
//	    MQTT:    mqttClient,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
package bridge
