package dfu

import "context"

// MaxRecoveryIterations bounds the state-machine recovery loop so a
// misbehaving device that oscillates between dfuERROR and dfuDNLOAD-IDLE
// cannot hang the host forever.
const MaxRecoveryIterations = 16

// EnterIdle drives dif to dfuIDLE per §4.4: it clears any error state,
// aborts a stale download/upload-idle condition, and fails if the device
// never left run-time mode. It is called before every DFU operation so the
// orchestrators can assume a clean starting state.
func EnterIdle(ctx context.Context, dif *DfuIf) error {
	for i := 0; i < MaxRecoveryIterations; i++ {
		st, err := GetStatus(ctx, dif)
		if err != nil {
			return err
		}
		if err := PollDelay(ctx, dif, st); err != nil {
			return err
		}

		switch st.State {
		case StateAppIdle, StateAppDetach:
			return ProtocolError("device is still in run-time mode (state %s)", st.State)
		case StateDfuError:
			if err := ClearStatus(ctx, dif); err != nil {
				return err
			}
			continue
		case StateDfuDnloadIdle, StateDfuUploadIdle:
			if err := Abort(ctx, dif); err != nil {
				return err
			}
			continue
		case StateDfuIdle:
			return checkStatusOK(ctx, dif, st)
		default:
			return checkStatusOK(ctx, dif, st)
		}
	}
	return ProtocolError("state machine did not converge to dfuIDLE after %d iterations", MaxRecoveryIterations)
}

func checkStatusOK(ctx context.Context, dif *DfuIf, st DeviceStatus) error {
	if st.Status == StatusOK {
		return nil
	}
	if err := ClearStatus(ctx, dif); err != nil {
		return err
	}
	st2, err := GetStatus(ctx, dif)
	if err != nil {
		return err
	}
	if st2.Status != StatusOK {
		return ProtocolError("device status remained %s after clear", st2.Status)
	}
	return nil
}

// WaitWhileState blocks, polling GET_STATUS and sleeping bwPollTimeout
// between each poll, until the device's state is no longer any of the
// states in leave. Used to wait out dfuDNBUSY/dfuMANIFEST-SYNC/dfuMANIFEST.
func WaitWhileState(ctx context.Context, dif *DfuIf, leave ...State) (DeviceStatus, error) {
	in := func(s State) bool {
		for _, l := range leave {
			if s == l {
				return true
			}
		}
		return false
	}

	for i := 0; i < MaxRecoveryIterations*4; i++ {
		st, err := GetStatus(ctx, dif)
		if err != nil {
			return DeviceStatus{}, err
		}
		if !in(st.State) {
			return st, nil
		}
		if err := PollDelay(ctx, dif, st); err != nil {
			return DeviceStatus{}, err
		}
	}
	return DeviceStatus{}, ProtocolError("device did not leave state(s) %v in time", leave)
}
